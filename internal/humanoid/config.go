package humanoid

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/xkilldash9x/formrelay/internal/config"
)

// Config holds the delay ranges used between form interactions.
type Config struct {
	Rng *rand.Rand

	// Pause after each option activation.
	OptionPauseMin time.Duration `json:"option_pause_min" yaml:"option_pause_min"`
	OptionPauseMax time.Duration `json:"option_pause_max" yaml:"option_pause_max"`

	// Pause after each processed question.
	QuestionPauseMin time.Duration `json:"question_pause_min" yaml:"question_pause_min"`
	QuestionPauseMax time.Duration `json:"question_pause_max" yaml:"question_pause_max"`

	// Fixed wait after submit so the page can settle before the session is captured.
	Settle time.Duration `json:"settle" yaml:"settle"`
}

// DefaultConfig returns the pacing observed to pass as a person filling the form by hand.
func DefaultConfig() Config {
	return Config{
		OptionPauseMin:   200 * time.Millisecond,
		OptionPauseMax:   1500 * time.Millisecond,
		QuestionPauseMin: 1000 * time.Millisecond,
		QuestionPauseMax: 2500 * time.Millisecond,
		Settle:           2 * time.Second,
	}
}

// Validate checks that every range is well formed.
func (c Config) Validate() error {
	if c.OptionPauseMin < 0 || c.OptionPauseMax < c.OptionPauseMin {
		return fmt.Errorf("option pause range [%s,%s] is invalid", c.OptionPauseMin, c.OptionPauseMax)
	}
	if c.QuestionPauseMin < 0 || c.QuestionPauseMax < c.QuestionPauseMin {
		return fmt.Errorf("question pause range [%s,%s] is invalid", c.QuestionPauseMin, c.QuestionPauseMax)
	}
	if c.Settle < 0 {
		return fmt.Errorf("settle pause must not be negative")
	}
	return nil
}

// ConfigFrom builds a Config from the pacing section of the application config.
func ConfigFrom(p config.PacingConfig, rng *rand.Rand) Config {
	return Config{
		Rng:              rng,
		OptionPauseMin:   p.OptionPauseMin,
		OptionPauseMax:   p.OptionPauseMax,
		QuestionPauseMin: p.QuestionPauseMin,
		QuestionPauseMax: p.QuestionPauseMax,
		Settle:           p.Settle,
	}
}
