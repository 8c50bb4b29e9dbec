package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formrelay/api/schemas"
	"github.com/xkilldash9x/formrelay/internal/humanoid"
)

var _ schemas.BrowserPage = (*Page)(nil)

var errNoLayoutBox = errors.New("click target has no layout box")

// Page is one isolated tab. It is owned by a single job and is not safe for concurrent use.
type Page struct {
	id         string
	tabCtx     context.Context
	tabCancel  context.CancelFunc
	logger     *zap.Logger
	scripts    scripts
	container  string
	navTimeout time.Duration
	persona    schemas.Persona

	// mouse is nil when clicks go straight to the element.
	mouse  *humanoid.Mouse
	cursor humanoid.Vector2D

	closeOnce sync.Once
	onClose   func()
}

// ID returns the page identifier used in logs.
func (p *Page) ID() string { return p.id }

// Persona returns the persona applied to the tab.
func (p *Page) Persona() schemas.Persona { return p.persona }

func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.tabCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the form container.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if p.navTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.navTimeout)
		defer cancel()
	}
	p.logger.Debug("Navigating", zap.String("url", url))
	err := p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.WaitReady(p.container, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", url, err)
	}
	return nil
}

// CurrentURL returns the location of the loaded document.
func (p *Page) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := p.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// HTML returns the outer HTML of the document element.
func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// QuestionCount returns the number of rendered question blocks.
func (p *Page) QuestionCount(ctx context.Context) (int, error) {
	var n int
	if err := p.run(ctx, chromedp.Evaluate(p.scripts.questionCount(), &n)); err != nil {
		return 0, fmt.Errorf("failed to count question blocks: %w", err)
	}
	return n, nil
}

// OptionCount returns the number of options in block q.
func (p *Page) OptionCount(ctx context.Context, q int) (int, error) {
	var n int
	if err := p.run(ctx, chromedp.Evaluate(p.scripts.optionCount(q), &n)); err != nil {
		return 0, fmt.Errorf("failed to count options: %w", err)
	}
	return n, nil
}

// ActivateOption clicks option o of block q.
func (p *Page) ActivateOption(ctx context.Context, q, o int) error {
	var status string
	if err := p.run(ctx, chromedp.Evaluate(p.scripts.markOption(q, o), &status)); err != nil {
		return fmt.Errorf("failed to locate option: %w", err)
	}
	switch status {
	case markOK:
	case markNoOption:
		return fmt.Errorf("option %d of block %d: %w", o, q, schemas.ErrControlNotFound)
	case markNoInput:
		return fmt.Errorf("option %d of block %d has no input: %w", o, q, schemas.ErrControlNotFound)
	default:
		return fmt.Errorf("unexpected option lookup result %q", status)
	}
	return p.clickTarget(ctx)
}

// Submit clicks the form's submit control.
func (p *Page) Submit(ctx context.Context) error {
	var found bool
	if err := p.run(ctx, chromedp.Evaluate(p.scripts.markSubmit(), &found)); err != nil {
		return fmt.Errorf("failed to locate submit control: %w", err)
	}
	if !found {
		return schemas.ErrSubmitNotFound
	}
	return p.clickTarget(ctx)
}

func (p *Page) clickTarget(ctx context.Context) error {
	click := chromedp.Click(targetSelector(), chromedp.ByQuery, chromedp.NodeVisible)
	if p.mouse != nil {
		var nodes []*cdp.Node
		if err := p.run(ctx, chromedp.Nodes(targetSelector(), &nodes, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
			return fmt.Errorf("click failed: %w", err)
		}
		if len(nodes) == 0 {
			return fmt.Errorf("click failed: %w", schemas.ErrControlNotFound)
		}
		click = p.moveAndClick(nodes[0])
	}
	var ignored bool
	if err := p.run(ctx, click, chromedp.Evaluate(unmarkScript(), &ignored)); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

// moveAndClick scrolls n into view, moves the cursor to a point inside it and clicks there.
func (p *Page) moveAndClick(n *cdp.Node) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := dom.ScrollIntoViewIfNeeded().WithNodeID(n.NodeID).Do(ctx); err != nil {
			return err
		}
		quads, err := dom.GetContentQuads().WithNodeID(n.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		if len(quads) == 0 {
			return errNoLayoutBox
		}
		box, ok := humanoid.BoxFromQuad(quads[0])
		if !ok {
			return errNoLayoutBox
		}

		target := p.mouse.ClickPoint(box)
		for _, step := range p.mouse.Path(p.cursor, target) {
			if err := humanoid.ContextSleeper.Sleep(ctx, step.Delay); err != nil {
				return err
			}
			if err := input.DispatchMouseEvent(input.MouseMoved, step.Point.X, step.Point.Y).Do(ctx); err != nil {
				return err
			}
			p.cursor = step.Point
		}

		if err := input.DispatchMouseEvent(input.MousePressed, target.X, target.Y).
			WithButton(input.Left).WithButtons(1).WithClickCount(1).Do(ctx); err != nil {
			return err
		}
		if err := humanoid.ContextSleeper.Sleep(ctx, p.mouse.HoldTime()); err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseReleased, target.X, target.Y).
			WithButton(input.Left).WithClickCount(1).Do(ctx)
	})
}

// CaptureState reads cookies and the current origin's localStorage.
func (p *Page) CaptureState(ctx context.Context) (*schemas.BrowserState, error) {
	state := &schemas.BrowserState{}
	var snapshot localStorageSnapshot
	err := p.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			cookies, err := network.GetCookies().Do(ctx)
			if err != nil {
				return fmt.Errorf("failed to read cookies: %w", err)
			}
			state.Cookies = fromCDPCookies(cookies)
			return nil
		}),
		chromedp.Evaluate(captureStorageScript, &snapshot),
	)
	if err != nil {
		return nil, err
	}
	if snapshot.Origin != "" && snapshot.Origin != "null" && len(snapshot.Items) > 0 {
		state.Origins = []schemas.OriginStorage{{Origin: snapshot.Origin, LocalStorage: snapshot.Items}}
	}
	return state, nil
}

// RestoreState sets the stored cookies and arranges for localStorage to be written when a
// document of a stored origin starts.
func (p *Page) RestoreState(ctx context.Context, state *schemas.BrowserState) error {
	if state.Empty() {
		return nil
	}
	var actions []chromedp.Action
	if len(state.Cookies) > 0 {
		actions = append(actions, network.SetCookies(toCookieParams(state.Cookies)))
	}
	if len(state.Origins) > 0 {
		script, err := restoreStorageScript(state.Origins)
		if err != nil {
			return err
		}
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}))
	}
	if err := p.run(ctx, actions...); err != nil {
		return fmt.Errorf("failed to restore session state: %w", err)
	}
	p.logger.Debug("Session state restored.",
		zap.Int("cookies", len(state.Cookies)),
		zap.Int("origins", len(state.Origins)),
	)
	return nil
}

// Close closes the tab. Later calls are no-ops.
func (p *Page) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		closeCtx, cancel := CombineContext(Detach(p.tabCtx), ctx)
		defer cancel()
		if cerr := chromedp.Cancel(closeCtx); cerr != nil {
			err = fmt.Errorf("failed to close tab: %w", cerr)
		}
		p.tabCancel()
		if p.onClose != nil {
			p.onClose()
		}
		p.logger.Debug("Page closed.")
	})
	return err
}
