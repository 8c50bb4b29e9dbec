package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formrelay/api/schemas"
	"github.com/xkilldash9x/formrelay/internal/replay"
)

const pageCloseTimeout = 10 * time.Second

// RunState is a stage of one replay run.
type RunState int

const (
	StateInitialized RunState = iota
	StatePageLoaded
	StatePerQuestion
	StateSubmitted
	StateSessionSaved
	StateClosed
)

func (s RunState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StatePageLoaded:
		return "page_loaded"
	case StatePerQuestion:
		return "per_question"
	case StateSubmitted:
		return "submitted"
	case StateSessionSaved:
		return "session_saved"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// run tracks one replay through its states.
type run struct {
	id     string
	state  RunState
	logger *zap.Logger
	// observe is called on every transition; used by tests.
	observe func(RunState)
}

func (r *run) to(next RunState) {
	r.logger.Debug("Run state change.", zap.Stringer("from", r.state), zap.Stringer("to", next))
	r.state = next
	if r.observe != nil {
		r.observe(next)
	}
}

// runOnce performs one complete replay: fresh page, restored session, navigate, answer,
// submit, save session. The page is always released.
func (s *FormService) runOnce(ctx context.Context, runID string, form *schemas.Form) (*replay.Result, error) {
	if err := s.jobs.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.jobs.Release(1)

	r := &run{id: runID, logger: s.logger.With(zap.String("run_id", runID)), observe: s.observeRun}
	r.to(StateInitialized)

	page, err := s.pages.NewPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open browser page: %w", err)
	}
	defer func() {
		s.closePage(page)
		r.to(StateClosed)
	}()

	// Runs of different requesters share one session artifact; only one may hold it.
	if err := s.session.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.session.Release(1)

	state, err := s.sessions.Load(ctx)
	if err != nil {
		r.logger.Warn("Starting without saved session state.", zap.Error(err))
	} else if err := page.RestoreState(ctx, state); err != nil {
		r.logger.Warn("Failed to restore session state.", zap.Error(err))
	}

	if err := page.Navigate(ctx, form.SourceLink); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrFormUnreadable, err)
	}
	r.to(StatePageLoaded)

	r.to(StatePerQuestion)
	res, err := s.replayer.Fill(ctx, page, form)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, ErrSubmitFailed) {
			return res, err
		}
		return res, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}
	r.to(StateSubmitted)

	// Read the session back from the same page so the next run reuses it.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pageCloseTimeout)
	defer cancel()
	captured, err := page.CaptureState(saveCtx)
	if err == nil {
		err = s.sessions.Save(saveCtx, captured)
	}
	if err != nil {
		r.logger.Warn("Failed to save session state; run continues without it.", zap.Error(err))
	} else {
		r.to(StateSessionSaved)
	}

	r.logger.Info("Run completed.",
		zap.Int("processed", res.Processed),
		zap.Int("activated", res.Activated),
	)
	return res, nil
}
