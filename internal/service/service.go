// Package service composes extraction, weight editing and replay into the operations the
// chat and CLI front ends call.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/formrelay/api/schemas"
	"github.com/xkilldash9x/formrelay/internal/config"
	"github.com/xkilldash9x/formrelay/internal/extractor"
	"github.com/xkilldash9x/formrelay/internal/replay"
	"github.com/xkilldash9x/formrelay/internal/weights"
)

// Failure classes surfaced to front ends.
var (
	ErrFormUnreadable = extractor.ErrFormUnreadable
	ErrSubmitFailed   = replay.ErrSubmitFailed
	ErrInvalidInput   = weights.ErrInvalidInput
)

// FillReport describes a sequence of replay runs.
type FillReport struct {
	Requested int              `json:"requested"`
	Completed int              `json:"completed"`
	RunIDs    []string         `json:"run_ids"`
	Results   []*replay.Result `json:"results"`
}

// FormService is safe for concurrent use by many requesters.
type FormService struct {
	forms     schemas.FormRepository
	sessions  schemas.SessionStore
	pages     schemas.PageProvider
	extractor *extractor.Extractor
	editor    *weights.Editor
	replayer  *replay.Replayer
	logger    *zap.Logger

	// jobs bounds simultaneous browser work across requesters.
	jobs           *semaphore.Weighted
	// session guards the shared session artifact from Load to Save and across resets.
	session        *semaphore.Weighted
	maxRepetitions int
	resetEvery     int

	mu             sync.Mutex
	runsSinceReset int

	observeRun func(RunState)
}

// New wires a FormService. pacer paces replay and rng drives every weighted draw.
func New(
	cfg config.Interface,
	forms schemas.FormRepository,
	sessions schemas.SessionStore,
	pages schemas.PageProvider,
	pacer replay.Pacer,
	rng *rand.Rand,
	logger *zap.Logger,
) *FormService {
	concurrency := cfg.Browser().Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &FormService{
		forms:          forms,
		sessions:       sessions,
		pages:          pages,
		extractor:      extractor.New(cfg.Form(), forms, logger),
		editor:         weights.NewEditor(forms, logger),
		replayer:       replay.New(pacer, rng, logger),
		logger:         logger.Named("service"),
		jobs:           semaphore.NewWeighted(int64(concurrency)),
		session:        semaphore.NewWeighted(1),
		maxRepetitions: cfg.Fill().MaxRepetitions,
		resetEvery:     cfg.Storage().SessionResetEvery,
	}
}

// MaxRepetitions is the largest accepted repetition count.
func (s *FormService) MaxRepetitions() int { return s.maxRepetitions }

// Extract loads link in a fresh page and stores the extracted schema for ownerID.
func (s *FormService) Extract(ctx context.Context, ownerID, link string) (*schemas.Form, *extractor.Report, error) {
	if err := s.jobs.Acquire(ctx, 1); err != nil {
		return nil, nil, err
	}
	defer s.jobs.Release(1)

	log := s.logger.With(zap.String("owner_id", ownerID), zap.String("link", link))
	log.Info("Extracting form.")

	page, err := s.pages.NewPage(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open browser page: %w", err)
	}
	defer s.closePage(page)

	if err := page.Navigate(ctx, link); err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrFormUnreadable, err)
	}

	form, report, err := s.extractor.ExtractAndSave(ctx, page, ownerID)
	if err != nil {
		log.Warn("Extraction failed.", zap.Error(err))
		return nil, report, err
	}
	return form, report, nil
}

// Describe returns the stored schema of ownerID.
func (s *FormService) Describe(ctx context.Context, ownerID string) (*schemas.Form, error) {
	return s.forms.Load(ctx, ownerID)
}

// SetWeights sets the weights of question questionIndex (0-based).
func (s *FormService) SetWeights(ctx context.Context, ownerID string, questionIndex int, w []int) (*schemas.Form, error) {
	return s.editor.SetWeights(ctx, ownerID, questionIndex, w)
}

// ValidateRepetitions checks n against 1..MaxRepetitions.
func (s *FormService) ValidateRepetitions(n int) error {
	if n < 1 || n > s.maxRepetitions {
		return fmt.Errorf("%w: repetitions must be between 1 and %d, got %d", ErrInvalidInput, s.maxRepetitions, n)
	}
	return nil
}

// Fill replays ownerID's schema repetitions times, strictly one run after another. The first
// failing run stops the sequence; the report still lists the runs that completed.
func (s *FormService) Fill(ctx context.Context, ownerID string, repetitions int) (*FillReport, error) {
	if err := s.ValidateRepetitions(repetitions); err != nil {
		return nil, err
	}
	form, err := s.forms.Load(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if form.SourceLink == "" {
		return nil, fmt.Errorf("%w: stored form has no link to open", ErrFormUnreadable)
	}

	report := &FillReport{Requested: repetitions}
	for i := 1; i <= repetitions; i++ {
		runID := uuid.NewString()
		report.RunIDs = append(report.RunIDs, runID)

		res, err := s.runOnce(ctx, runID, form)
		if err != nil {
			s.logger.Error("Fill run failed.",
				zap.String("owner_id", ownerID),
				zap.String("run_id", runID),
				zap.Int("run", i),
				zap.Error(err),
			)
			return report, fmt.Errorf("run %d of %d: %w", i, repetitions, err)
		}
		report.Completed++
		report.Results = append(report.Results, res)

		s.noteRunCompleted(ctx)
	}

	s.logger.Info("Fill finished.", zap.String("owner_id", ownerID), zap.Int("runs", report.Completed))
	return report, nil
}

// noteRunCompleted resets the shared session artifact every resetEvery completed runs.
func (s *FormService) noteRunCompleted(ctx context.Context) {
	if s.resetEvery <= 0 {
		return
	}
	s.mu.Lock()
	s.runsSinceReset++
	due := s.runsSinceReset >= s.resetEvery
	if due {
		s.runsSinceReset = 0
	}
	s.mu.Unlock()

	if !due {
		return
	}
	if err := s.session.Acquire(ctx, 1); err != nil {
		s.logger.Warn("Session reset skipped.", zap.Error(err))
		return
	}
	defer s.session.Release(1)
	if err := s.sessions.Reset(ctx); err != nil {
		s.logger.Warn("Failed to reset session state.", zap.Error(err))
		return
	}
	s.logger.Info("Session state reset.", zap.Int("every", s.resetEvery))
}

func (s *FormService) closePage(page schemas.BrowserPage) {
	ctx, cancel := context.WithTimeout(context.Background(), pageCloseTimeout)
	defer cancel()
	if err := page.Close(ctx); err != nil {
		s.logger.Warn("Failed to close page.", zap.Error(err))
	}
}

// FailureClass groups errors for user-facing messages.
type FailureClass string

const (
	FailureNone           FailureClass = ""
	FailureInvalidInput   FailureClass = "invalid_input"
	FailureSubmit         FailureClass = "submit_failed"
	FailureFormUnreadable FailureClass = "form_unreadable"
	FailureFormNotFound   FailureClass = "form_not_found"
	FailureCanceled       FailureClass = "canceled"
	FailureInternal       FailureClass = "internal"
)

// Classify returns the failure class of err.
func Classify(err error) FailureClass {
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, ErrInvalidInput):
		return FailureInvalidInput
	case errors.Is(err, ErrSubmitFailed):
		return FailureSubmit
	case errors.Is(err, ErrFormUnreadable):
		return FailureFormUnreadable
	case errors.Is(err, schemas.ErrFormNotFound):
		return FailureFormNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return FailureCanceled
	}
	return FailureInternal
}
