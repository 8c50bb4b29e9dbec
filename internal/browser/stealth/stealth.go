// Package stealth picks browser personas and applies them to a tab so automated sessions look
// like ordinary desktop and mobile visitors.
package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrelay/api/schemas"
)

//go:embed evasions.js
var evasionsScript string

// DefaultUserAgents covers Edge and Chrome on Windows, Android and iOS.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36 Edg/126.0.2592.87",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.6478.122 Mobile Safari/537.36",
	"Mozilla/5.0 (Linux; Android 13; SM-S918B) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Mobile Safari/537.36 EdgA/126.0.2592.80",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) CriOS/126.0.6478.54 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 EdgiOS/126.2592.86 Mobile/15E148 Safari/605.1.15",
}

// PersonaFor derives a consistent persona from a user agent string. Language, timezone and
// locale come from schemas.DefaultPersona.
func PersonaFor(userAgent string) schemas.Persona {
	p := schemas.DefaultPersona
	p.UserAgent = userAgent
	p.Languages = append([]string(nil), schemas.DefaultPersona.Languages...)

	switch {
	case strings.Contains(userAgent, "iPhone"):
		p.Platform, p.Mobile, p.Width, p.Height = "iPhone", true, 390, 844
	case strings.Contains(userAgent, "iPad"):
		p.Platform, p.Mobile, p.Width, p.Height = "iPad", true, 820, 1180
	case strings.Contains(userAgent, "Android"):
		p.Platform, p.Mobile, p.Width, p.Height = "Linux armv81", true, 412, 915
	case strings.Contains(userAgent, "Macintosh"):
		p.Platform, p.Width, p.Height = "MacIntel", 1440, 900
	case strings.Contains(userAgent, "X11; Linux"):
		p.Platform, p.Width, p.Height = "Linux x86_64", 1920, 1080
	default:
		p.Platform, p.Width, p.Height = "Win32", 1920, 1080
	}
	return p
}

// Pool hands out a random persona per tab. It is safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	rng      *rand.Rand
	personas []schemas.Persona
}

// NewPool builds a pool from userAgents, falling back to DefaultUserAgents when empty.
func NewPool(userAgents []string, rng *rand.Rand) *Pool {
	if len(userAgents) == 0 {
		userAgents = DefaultUserAgents
	}
	personas := make([]schemas.Persona, 0, len(userAgents))
	for _, ua := range userAgents {
		if ua = strings.TrimSpace(ua); ua != "" {
			personas = append(personas, PersonaFor(ua))
		}
	}
	if len(personas) == 0 {
		personas = append(personas, schemas.DefaultPersona)
	}
	return &Pool{rng: rng, personas: personas}
}

// Pick returns a random persona.
func (p *Pool) Pick() schemas.Persona {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.personas[p.rng.Intn(len(p.personas))]
}

// Len returns the number of personas in the pool.
func (p *Pool) Len() int { return len(p.personas) }

// AcceptLanguage renders languages as an Accept-Language header value with descending q-values.
func AcceptLanguage(languages []string) string {
	if len(languages) == 0 {
		return ""
	}
	parts := make([]string, 0, len(languages))
	for i, lang := range languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

// Script returns the evasion script primed with the persona's navigator values.
func Script(p schemas.Persona) (string, error) {
	prime, err := json.Marshal(map[string]interface{}{
		"platform":  p.Platform,
		"languages": p.Languages,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode persona for evasions: %w", err)
	}
	return fmt.Sprintf("window.__formrelayPersona = %s;\n%s", prime, evasionsScript), nil
}

// Apply returns the CDP actions that make a tab present persona p.
func Apply(p schemas.Persona, logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
		zap.Bool("mobile", p.Mobile),
	)
	acceptLanguage := AcceptLanguage(p.Languages)

	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).
			WithPlatform(p.Platform).
			WithAcceptLanguage(acceptLanguage),
		emulation.SetDeviceMetricsOverride(p.Width, p.Height, 1, p.Mobile),
		chromedp.ActionFunc(func(ctx context.Context) error {
			script, err := Script(p)
			if err != nil {
				return err
			}
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
		emulation.SetTimezoneOverride(p.Timezone),
		emulation.SetLocaleOverride().WithLocale(p.Locale),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": acceptLanguage}),
	}
	if p.Mobile {
		tasks = append(tasks, emulation.SetTouchEmulationEnabled(true))
	}
	return tasks
}
