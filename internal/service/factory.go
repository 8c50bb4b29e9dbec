// File: internal/service/factory.go
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formrelay/api/schemas"
	"github.com/xkilldash9x/formrelay/internal/browser"
	"github.com/xkilldash9x/formrelay/internal/config"
	"github.com/xkilldash9x/formrelay/internal/humanoid"
	"github.com/xkilldash9x/formrelay/internal/sampling"
	"github.com/xkilldash9x/formrelay/internal/store"
)

// ComponentFactory creates the components a command runs with. Commands depend on the
// interface so tests can inject fakes.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger, opts Options) (*Components, error)
}

// Options selects optional components.
type Options struct {
	// Browser launches Chromium. Commands that only touch stored schemas leave it off.
	Browser bool
}

// ErrNoBrowser is returned by page operations of components created without a browser.
var ErrNoBrowser = errors.New("browser is not enabled for this command")

type noBrowser struct{}

func (noBrowser) NewPage(context.Context) (schemas.BrowserPage, error) { return nil, ErrNoBrowser }

type concreteFactory struct{}

// NewComponentFactory creates the production factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// NewRand returns a generator seeded from the pacing seed, or from the clock when it is zero.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return sampling.NewRand(seed)
}

// Create wires storage, the optional browser and the FormService. Partially created
// components are released when a later step fails.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger, opts Options) (*Components, error) {
	components := &Components{}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Form store
	forms, closeStore, err := store.Open(ctx, cfg.Storage(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to open form store: %w", err)
		return nil, initializationErr
	}
	components.Forms = forms
	components.closeStore = closeStore
	logger.Debug("Form store initialized.", zap.String("backend", cfg.Storage().Backend))

	// 2. Session store
	sessions, err := store.NewFileSessionStore(cfg.Storage().SessionFile, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to open session store: %w", err)
		return nil, initializationErr
	}
	components.Sessions = sessions

	// 3. Browser
	var pages schemas.PageProvider = noBrowser{}
	if opts.Browser {
		manager, err := browser.NewManager(ctx, cfg.Browser(), cfg.Form(), logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize browser manager: %w", err)
			return nil, initializationErr
		}
		components.Browser = manager
		pages = manager
		logger.Debug("Browser manager initialized.")
	}

	// 4. Service
	// Weighted draws replay exactly for a fixed seed; pauses get their own stream.
	rng := NewRand(cfg.Pacing().Seed)
	pacer := humanoid.New(humanoid.ConfigFrom(cfg.Pacing(), sampling.NewRand(rng.Int63())), logger, nil)
	components.Service = New(cfg, forms, sessions, pages, pacer, rng, logger)

	logger.Info("All components initialized successfully.")
	return components, nil
}
