// Package weights attaches per-option selection weights to stored form schemas.
package weights

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formrelay/api/schemas"
)

// Editor validates weight edits and writes them back through a FormRepository.
// Edits to the same owner's schema are serialized because Save overwrites the whole document.
type Editor struct {
	repo   schemas.FormRepository
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewEditor creates an Editor over repo.
func NewEditor(repo schemas.FormRepository, logger *zap.Logger) *Editor {
	return &Editor{
		repo:   repo,
		logger: logger.Named("weights"),
		locks:  make(map[string]*sync.Mutex),
	}
}

// SetWeights loads the owner's schema, sets the weights of question questionIndex (0-based) and
// saves the whole schema. Validation failures are *ValidationError and leave storage untouched.
func (e *Editor) SetWeights(ctx context.Context, ownerID string, questionIndex int, weights []int) (*schemas.Form, error) {
	unlock := e.lockOwner(ownerID)
	defer unlock()

	form, err := e.repo.Load(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load form for weight edit: %w", err)
	}

	updated := form.Clone()
	if err := ApplyWeights(updated, questionIndex, weights); err != nil {
		e.logger.Info("Weight edit rejected.",
			zap.String("owner_id", ownerID),
			zap.Int("question", questionIndex),
			zap.Stringer("kind", KindOf(err)),
			zap.Error(err),
		)
		return nil, err
	}

	if err := e.repo.Save(ctx, ownerID, updated); err != nil {
		return nil, fmt.Errorf("failed to save weights: %w", err)
	}
	e.logger.Info("Weights saved.",
		zap.String("owner_id", ownerID),
		zap.Int("question", questionIndex),
		zap.Ints("weights", weights),
	)
	return updated, nil
}

// lockOwner returns the unlock function of the owner's mutex.
func (e *Editor) lockOwner(ownerID string) func() {
	e.mu.Lock()
	l, ok := e.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[ownerID] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// ApplyWeights validates weights against question questionIndex of form and replaces its
// selection weights with the 1-based mapping of weights. form is only modified on success.
func ApplyWeights(form *schemas.Form, questionIndex int, weights []int) error {
	if form == nil {
		return fmt.Errorf("cannot apply weights to nil form")
	}
	if questionIndex < 0 || questionIndex >= len(form.Questions) {
		return invalid(KindQuestionIndex,
			"question %d does not exist; the form has %d questions", questionIndex+1, len(form.Questions))
	}

	q := &form.Questions[questionIndex]
	if len(weights) != len(q.Options) {
		return invalid(KindWeightCount,
			"question %d has %d options but %d weights were given", questionIndex+1, len(q.Options), len(weights))
	}
	for i, w := range weights {
		if w < schemas.MinWeight || w > schemas.MaxWeight {
			return invalid(KindWeightRange,
				"weight %d for option %d is outside %d..%d", w, i+1, schemas.MinWeight, schemas.MaxWeight)
		}
	}

	mapping := make(map[string]int, len(weights))
	for i, w := range weights {
		mapping[strconv.Itoa(i+1)] = w
	}
	q.SelectionWeight = mapping
	return nil
}

// ParseWeights parses a comma-separated weight list such as "9, 1, 1".
// Range checks are left to ApplyWeights.
func ParseWeights(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, invalid(KindWeightSyntax, "no weights given; send numbers separated by commas, e.g. 9,1,1")
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, invalid(KindWeightSyntax, "weight %d (%q) is not a whole number", i+1, strings.TrimSpace(p))
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseQuestionNumber parses a 1-based question number into a 0-based index.
func ParseQuestionNumber(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, invalid(KindQuestionIndex, "%q is not a question number", strings.TrimSpace(s))
	}
	return n - 1, nil
}
