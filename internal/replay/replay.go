// Package replay answers a live form according to a stored, weighted schema and submits it.
package replay

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formrelay/api/schemas"
	"github.com/xkilldash9x/formrelay/internal/sampling"
)

// ErrSubmitFailed is the class of every failure to submit the answered form.
var ErrSubmitFailed = errors.New("could not submit form")

// Pacer supplies the pauses between interactions. *humanoid.Pacer implements it.
type Pacer interface {
	OptionPause(ctx context.Context) error
	QuestionPause(ctx context.Context) error
	SettlePause(ctx context.Context) error
}

// Result summarizes one replay.
type Result struct {
	// Processed counts questions that had at least one option drawn.
	Processed int `json:"processed"`
	// Skipped counts schema questions left untouched.
	Skipped int `json:"skipped"`
	// Activated counts options that were actually selected on the page.
	Activated int `json:"activated"`
}

// Replayer draws answers from selection weights and drives a LivePage with them.
type Replayer struct {
	pacer  Pacer
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Replayer. rng drives every draw so a seeded generator reproduces a run.
func New(pacer Pacer, rng *rand.Rand, logger *zap.Logger) *Replayer {
	return &Replayer{
		pacer:  pacer,
		rng:    rng,
		logger: logger.Named("replay"),
	}
}

// Fill answers every question of form that can be paired with a live block, then submits.
func (r *Replayer) Fill(ctx context.Context, page schemas.LivePage, form *schemas.Form) (*Result, error) {
	if form == nil {
		return nil, fmt.Errorf("cannot replay nil form")
	}

	liveCount, err := page.QuestionCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count live questions: %w", err)
	}
	if liveCount != len(form.Questions) {
		r.logger.Warn("Live question count differs from schema.",
			zap.Int("live", liveCount),
			zap.Int("schema", len(form.Questions)),
		)
	}

	res := &Result{}
	for i := range form.Questions {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		q := &form.Questions[i]

		block := i
		if q.PageIndex != nil {
			block = *q.PageIndex
		}
		if block >= liveCount {
			r.logger.Warn("No live block for question.", zap.Int("question", i), zap.Int("block", block))
			res.Skipped++
			continue
		}

		activated, answered, err := r.answer(ctx, page, i, block, q)
		if err != nil {
			return res, err
		}
		res.Activated += activated
		if !answered {
			res.Skipped++
			continue
		}
		res.Processed++
	}

	if err := page.Submit(ctx); err != nil {
		return res, fmt.Errorf("%w: %w", ErrSubmitFailed, err)
	}
	r.logger.Info("Form submitted.",
		zap.Int("processed", res.Processed),
		zap.Int("skipped", res.Skipped),
		zap.Int("activated", res.Activated),
	)
	if err := r.pacer.SettlePause(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// answer handles one question. It reports how many options were activated and whether the
// question counts as answered.
func (r *Replayer) answer(ctx context.Context, page schemas.LivePage, i, block int, q *schemas.Question) (int, bool, error) {
	log := r.logger.With(zap.Int("question", i), zap.Int("block", block))

	if q.Type != schemas.SingleChoice && q.Type != schemas.MultiChoice {
		log.Debug("Leaving question untouched.", zap.Stringer("type", q.Type))
		return 0, false, nil
	}

	n, err := page.OptionCount(ctx, block)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		log.Warn("Could not count live options; skipping question.", zap.Error(err))
		return 0, false, nil
	}
	if n == 0 {
		log.Warn("No live options; skipping question.")
		return 0, false, nil
	}
	if n != len(q.Options) {
		log.Debug("Live option count differs from schema.", zap.Int("live", n), zap.Int("schema", len(q.Options)))
	}

	picks, ok := r.draw(q.Type, q.WeightVector(n))
	if !ok {
		log.Warn("All option weights are zero; skipping question.")
		return 0, false, nil
	}

	activated := 0
	for _, o := range picks {
		if err := page.ActivateOption(ctx, block, o); err != nil {
			if errors.Is(err, schemas.ErrControlNotFound) {
				log.Warn("Option has no input control.", zap.Int("option", o))
				continue
			}
			return activated, false, fmt.Errorf("failed to activate option %d of block %d: %w", o, block, err)
		}
		activated++
		if err := r.pacer.OptionPause(ctx); err != nil {
			return activated, false, err
		}
	}

	if err := r.pacer.QuestionPause(ctx); err != nil {
		return activated, false, err
	}
	return activated, true, nil
}

// draw picks option indices in ascending order.
func (r *Replayer) draw(t schemas.QuestionType, weights []int) ([]int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if t == schemas.MultiChoice {
		return sampling.ChooseMany(r.rng, weights)
	}
	idx, ok := sampling.Choose(r.rng, weights)
	if !ok {
		return nil, false
	}
	return []int{idx}, true
}
