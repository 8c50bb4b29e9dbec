// Package humanoid paces form interactions with randomized, human-looking delays and plans
// the cursor movement that leads to each click.
package humanoid

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sleeper blocks for a duration or until the context ends.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to the Sleeper interface.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep implements Sleeper.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// ContextSleeper waits on a timer and returns early with the context error.
var ContextSleeper Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
})

// Pacer produces the pauses of a fill run. It is safe for concurrent use.
type Pacer struct {
	mu      sync.Mutex
	cfg     Config
	rng     *rand.Rand
	sleeper Sleeper
	logger  *zap.Logger
}

// New creates a Pacer. A nil sleeper falls back to ContextSleeper and a nil Rng in the
// config is replaced with a time-seeded generator.
func New(cfg Config, logger *zap.Logger, sleeper Sleeper) *Pacer {
	rng := cfg.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if sleeper == nil {
		sleeper = ContextSleeper
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pacer{
		cfg:     cfg,
		rng:     rng,
		sleeper: sleeper,
		logger:  logger.Named("pacer"),
	}
}

// NewTestPacer returns a deterministic Pacer that sleeps through sleeper.
func NewTestPacer(sleeper Sleeper, seed int64) *Pacer {
	cfg := DefaultConfig()
	cfg.Rng = rand.New(rand.NewSource(seed))
	return New(cfg, zap.NewNop(), sleeper)
}

// OptionPause waits after an option has been activated.
func (p *Pacer) OptionPause(ctx context.Context) error {
	return p.pause(ctx, "option", p.cfg.OptionPauseMin, p.cfg.OptionPauseMax)
}

// QuestionPause waits after a question has been answered.
func (p *Pacer) QuestionPause(ctx context.Context) error {
	return p.pause(ctx, "question", p.cfg.QuestionPauseMin, p.cfg.QuestionPauseMax)
}

// SettlePause waits the fixed settle time after submit.
func (p *Pacer) SettlePause(ctx context.Context) error {
	return p.sleeper.Sleep(ctx, p.cfg.Settle)
}

func (p *Pacer) pause(ctx context.Context, kind string, lo, hi time.Duration) error {
	d := p.uniform(lo, hi)
	p.logger.Debug("Pausing", zap.String("kind", kind), zap.Duration("duration", d))
	return p.sleeper.Sleep(ctx, d)
}

// uniform draws a duration in [lo, hi].
func (p *Pacer) uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo + time.Duration(p.rng.Int63n(int64(hi-lo)+1))
}
