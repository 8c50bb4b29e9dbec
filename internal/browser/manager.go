// Package browser runs the headless Chromium that loads and answers forms.
package browser

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrelay/api/schemas"
	"github.com/xkilldash9x/formrelay/internal/browser/stealth"
	"github.com/xkilldash9x/formrelay/internal/config"
	"github.com/xkilldash9x/formrelay/internal/humanoid"
)

var _ schemas.PageProvider = (*Manager)(nil)

// Manager owns the browser process and hands out isolated pages.
type Manager struct {
	logger   *zap.Logger
	cfg      config.BrowserConfig
	form     config.FormConfig
	personas *stealth.Pool

	// seeds hands each page its own cursor stream.
	seedMu sync.Mutex
	seeds  *rand.Rand

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	// wg tracks open pages for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager launches the browser process.
func NewManager(ctx context.Context, cfg config.BrowserConfig, form config.FormConfig, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		logger:   logger.Named("browser_manager"),
		cfg:      cfg,
		form:     form,
		personas: stealth.NewPool(cfg.UserAgents, rand.New(rand.NewSource(time.Now().UnixNano()))),
		seeds:    rand.New(rand.NewSource(time.Now().UnixNano() + 1)),
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...", zap.Bool("headless", m.cfg.Headless))

	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(Detach(ctx), AllocatorOptions(m.cfg)...)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx)

	// An empty Run starts the browser process.
	if err := chromedp.Run(m.browserCtx); err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}
	m.logger.Info("Browser launched successfully.", zap.Int("personas", m.personas.Len()))
	return nil
}

type flag struct {
	name  string
	value interface{}
}

// allocatorFlags lists the flags layered over chromedp's defaults.
func allocatorFlags(cfg config.BrowserConfig) []flag {
	flags := []flag{
		{"enable-automation", false},
		{"headless", cfg.Headless},
		{"ignore-certificate-errors", cfg.IgnoreTLSErrors},
		{"disable-blink-features", "AutomationControlled"},
		{"disable-extensions", true},
		{"disable-gpu", cfg.Headless},
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags = append(flags, flag{name, parts[1]})
		} else {
			flags = append(flags, flag{name, true})
		}
	}

	// Containers on Linux lack the sandbox and a large /dev/shm.
	if runtime.GOOS == "linux" {
		flags = append(flags,
			flag{"no-sandbox", true},
			flag{"disable-dev-shm-usage", true},
		)
	}
	return flags
}

// AllocatorOptions builds the exec allocator options for cfg.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for _, f := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}
	return append(opts, chromedp.UserAgent(schemas.DefaultPersona.UserAgent))
}

// NewPage opens a tab in a fresh browser context with a random persona applied.
func (m *Manager) NewPage(ctx context.Context) (schemas.BrowserPage, error) {
	id := uuid.New().String()
	logger := m.logger.Named("page").With(zap.String("page_id", id[:8]))

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx, chromedp.WithNewBrowserContext())
	persona := m.personas.Pick()

	p := &Page{
		id:         id,
		tabCtx:     tabCtx,
		tabCancel:  tabCancel,
		logger:     logger,
		scripts:    newScripts(m.form.Selectors),
		container:  m.form.Selectors.Container,
		navTimeout: m.cfg.NavigationTimeout,
		persona:    persona,
	}
	if m.cfg.HumanizeClicks {
		p.mouse = humanoid.NewMouse(m.newPageRand())
	}

	m.wg.Add(1)
	p.onClose = m.wg.Done

	if err := p.run(ctx, stealth.Apply(persona, logger)); err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = p.Close(cleanupCtx)
		return nil, fmt.Errorf("failed to initialize page: %w", err)
	}

	logger.Debug("Page opened.", zap.String("user_agent", persona.UserAgent))
	return p, nil
}

func (m *Manager) newPageRand() *rand.Rand {
	m.seedMu.Lock()
	defer m.seedMu.Unlock()
	return rand.New(rand.NewSource(m.seeds.Int63()))
}

// Shutdown waits for open pages to close, bounded by ctx, then stops the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for open pages...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All pages closed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.browserCancel != nil {
		m.browserCancel()
	}
	if m.allocatorCancel != nil {
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}
