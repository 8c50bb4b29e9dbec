package replay

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/formrelay/api/schemas"
	"github.com/xkilldash9x/formrelay/internal/humanoid"
	"github.com/xkilldash9x/formrelay/internal/mocks"
	"github.com/xkilldash9x/formrelay/internal/sampling"
)

type activation struct{ Block, Option int }

// fakePage is a LivePage with a fixed option count per block.
type fakePage struct {
	mu          sync.Mutex
	options     []int
	missing     map[activation]bool
	submitErr   error
	activations []activation
	submitted   int
}

func (p *fakePage) QuestionCount(context.Context) (int, error) { return len(p.options), nil }

func (p *fakePage) OptionCount(_ context.Context, q int) (int, error) { return p.options[q], nil }

func (p *fakePage) ActivateOption(_ context.Context, q, o int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	a := activation{q, o}
	if p.missing[a] {
		return schemas.ErrControlNotFound
	}
	p.activations = append(p.activations, a)
	return nil
}

func (p *fakePage) Submit(context.Context) error {
	p.submitted++
	return p.submitErr
}

// countingPacer records pauses without sleeping.
type countingPacer struct {
	option, question, settle int
}

func (c *countingPacer) OptionPause(context.Context) error {
	c.option++
	return nil
}

func (c *countingPacer) QuestionPause(context.Context) error {
	c.question++
	return nil
}

func (c *countingPacer) SettlePause(context.Context) error {
	c.settle++
	return nil
}

func single(options int, weights map[string]int) schemas.Question {
	q := schemas.Question{Text: "s", Type: schemas.SingleChoice, SelectionWeight: weights}
	for i := 0; i < options; i++ {
		q.Options = append(q.Options, "opt")
	}
	return q
}

func multi(options int, weights map[string]int) schemas.Question {
	q := single(options, weights)
	q.Type = schemas.MultiChoice
	return q
}

func newReplayer(seed int64, pacer Pacer) *Replayer {
	return New(pacer, sampling.NewRand(seed), zap.NewNop())
}

func TestFill_ZeroWeightsAreNeverChosen(t *testing.T) {
	form := &schemas.Form{Title: "T", Questions: []schemas.Question{
		single(3, map[string]int{"1": 0, "2": 0, "3": 10}),
	}}
	for seed := int64(0); seed < 50; seed++ {
		page := &fakePage{options: []int{3}}
		_, err := newReplayer(seed, &countingPacer{}).Fill(context.Background(), page, form)
		require.NoError(t, err)
		assert.Equal(t, []activation{{0, 2}}, page.activations, "seed %d", seed)
	}
}

func TestFill_MultiChoiceSubsets(t *testing.T) {
	form := &schemas.Form{Title: "T", Questions: []schemas.Question{multi(4, nil)}}
	sizes := map[int]bool{}
	for seed := int64(0); seed < 200; seed++ {
		page := &fakePage{options: []int{4}}
		res, err := newReplayer(seed, &countingPacer{}).Fill(context.Background(), page, form)
		require.NoError(t, err)

		n := len(page.activations)
		require.GreaterOrEqual(t, n, 1)
		require.LessOrEqual(t, n, 4)
		sizes[n] = true
		assert.Equal(t, n, res.Activated)
		assert.True(t, sort.SliceIsSorted(page.activations, func(i, j int) bool {
			return page.activations[i].Option < page.activations[j].Option
		}), "activations follow document order")
	}
	assert.True(t, sizes[1], "single-option subsets show up")
	assert.Greater(t, len(sizes), 1, "subset size varies between runs")
}

func TestFill_PairsMinOfLiveAndSchema(t *testing.T) {
	t.Run("live page has more blocks", func(t *testing.T) {
		form := &schemas.Form{Title: "T", Questions: []schemas.Question{single(2, nil), single(2, nil)}}
		page := &fakePage{options: []int{2, 2, 2, 2, 2}}
		res, err := newReplayer(1, &countingPacer{}).Fill(context.Background(), page, form)
		require.NoError(t, err)

		assert.Equal(t, 2, res.Processed)
		for _, a := range page.activations {
			assert.Less(t, a.Block, 2)
		}
	})

	t.Run("schema has more questions", func(t *testing.T) {
		form := &schemas.Form{Title: "T", Questions: []schemas.Question{single(2, nil), single(2, nil), single(2, nil)}}
		page := &fakePage{options: []int{2}}
		res, err := newReplayer(1, &countingPacer{}).Fill(context.Background(), page, form)
		require.NoError(t, err)

		assert.Equal(t, 1, res.Processed)
		assert.Equal(t, 2, res.Skipped)
		assert.Equal(t, 1, page.submitted)
	})
}

func TestFill_PageIndexPinsBlock(t *testing.T) {
	q := single(2, map[string]int{"1": 0, "2": 5})
	q.PageIndex = schemas.IntPtr(3)
	far := single(2, nil)
	far.PageIndex = schemas.IntPtr(9)
	form := &schemas.Form{Title: "T", Questions: []schemas.Question{q, far}}
	page := &fakePage{options: []int{0, 0, 0, 2}}

	res, err := newReplayer(1, &countingPacer{}).Fill(context.Background(), page, form)
	require.NoError(t, err)
	assert.Equal(t, []activation{{3, 1}}, page.activations)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Skipped)
}

func TestFill_SkipsAndPauses(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	pacer := &countingPacer{}
	r := New(pacer, sampling.NewRand(7), zap.New(core))

	form := &schemas.Form{Title: "T", Questions: []schemas.Question{
		{Text: "free", Type: schemas.UnknownQuestion, Options: []string{"x"}},
		single(2, map[string]int{"1": 0, "2": 0}),
		single(2, nil),
		single(3, map[string]int{"1": 10, "2": 0, "3": 0}),
	}}
	page := &fakePage{options: []int{1, 2, 0, 3}}

	res, err := r.Fill(context.Background(), page, form)
	require.NoError(t, err)

	assert.Equal(t, &Result{Processed: 1, Skipped: 3, Activated: 1}, res)
	assert.Equal(t, []activation{{3, 0}}, page.activations)
	assert.Equal(t, 1, pacer.option)
	assert.Equal(t, 1, pacer.question, "unknown and skipped questions do not pause")
	assert.Equal(t, 1, pacer.settle)
	assert.Equal(t, 1, logs.FilterMessage("All option weights are zero; skipping question.").Len())
	assert.Equal(t, 1, logs.FilterMessage("No live options; skipping question.").Len())
}

func TestFill_MissingControlSkipsOptionOnly(t *testing.T) {
	form := &schemas.Form{Title: "T", Questions: []schemas.Question{
		single(2, map[string]int{"1": 1, "2": 0}),
		single(2, map[string]int{"1": 0, "2": 1}),
	}}
	page := &fakePage{options: []int{2, 2}, missing: map[activation]bool{{0, 0}: true}}
	pacer := &countingPacer{}

	res, err := newReplayer(1, pacer).Fill(context.Background(), page, form)
	require.NoError(t, err)
	assert.Equal(t, []activation{{1, 1}}, page.activations)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 1, res.Activated)
	assert.Equal(t, 1, pacer.option)
}

func TestFill_SubmitFailure(t *testing.T) {
	form := &schemas.Form{Title: "T", Questions: []schemas.Question{single(1, nil)}}
	page := &fakePage{options: []int{1}, submitErr: schemas.ErrSubmitNotFound}
	pacer := &countingPacer{}

	res, err := newReplayer(1, pacer).Fill(context.Background(), page, form)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSubmitFailed)
	assert.ErrorIs(t, err, schemas.ErrSubmitNotFound)
	assert.Equal(t, 1, res.Processed)
	assert.Zero(t, pacer.settle)
}

func TestFill_PageErrorsAbort(t *testing.T) {
	ctx := context.Background()
	form := &schemas.Form{Title: "T", Questions: []schemas.Question{single(2, nil)}}
	boom := errors.New("target crashed")

	t.Run("question count", func(t *testing.T) {
		page := new(mocks.MockLivePage)
		page.On("QuestionCount", mock.Anything).Return(0, boom)
		_, err := newReplayer(1, &countingPacer{}).Fill(ctx, page, form)
		assert.ErrorIs(t, err, boom)
		page.AssertNotCalled(t, "Submit", mock.Anything)
	})

	t.Run("activation", func(t *testing.T) {
		page := new(mocks.MockLivePage)
		page.On("QuestionCount", mock.Anything).Return(1, nil)
		page.On("OptionCount", mock.Anything, 0).Return(2, nil)
		page.On("ActivateOption", mock.Anything, 0, mock.Anything).Return(boom)
		_, err := newReplayer(1, &countingPacer{}).Fill(ctx, page, form)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, ErrSubmitFailed)
		page.AssertNotCalled(t, "Submit", mock.Anything)
	})
}

func TestFill_OptionCountFailureSkipsQuestion(t *testing.T) {
	form := &schemas.Form{Title: "T", Questions: []schemas.Question{single(2, nil), single(2, nil)}}
	boom := errors.New("node detached")

	t.Run("other questions still answered", func(t *testing.T) {
		page := new(mocks.MockLivePage)
		page.On("QuestionCount", mock.Anything).Return(2, nil)
		page.On("OptionCount", mock.Anything, 0).Return(0, boom)
		page.On("OptionCount", mock.Anything, 1).Return(2, nil)
		page.On("ActivateOption", mock.Anything, 1, mock.Anything).Return(nil).Once()
		page.On("Submit", mock.Anything).Return(nil).Once()

		res, err := newReplayer(1, &countingPacer{}).Fill(context.Background(), page, form)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Skipped)
		assert.Equal(t, 1, res.Processed)
		assert.Equal(t, 1, res.Activated)
		page.AssertNotCalled(t, "ActivateOption", mock.Anything, 0, mock.Anything)
		page.AssertExpectations(t)
	})

	t.Run("canceled context still aborts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		page := new(mocks.MockLivePage)
		page.On("QuestionCount", mock.Anything).Return(2, nil)
		page.On("OptionCount", mock.Anything, 0).Run(func(mock.Arguments) { cancel() }).Return(0, boom)

		_, err := newReplayer(1, &countingPacer{}).Fill(ctx, page, form)
		assert.ErrorIs(t, err, context.Canceled)
		page.AssertNotCalled(t, "Submit", mock.Anything)
	})
}

func TestFill_CancelledDuringPause(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sleeper := humanoid.SleeperFunc(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})
	r := New(humanoid.NewTestPacer(sleeper, 1), sampling.NewRand(1), zap.NewNop())
	form := &schemas.Form{Title: "T", Questions: []schemas.Question{single(1, nil), single(1, nil)}}
	page := &fakePage{options: []int{1, 1}}

	_, err := r.Fill(ctx, page, form)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, page.activations, 1)
	assert.Zero(t, page.submitted)
}

func TestFill_NilForm(t *testing.T) {
	_, err := newReplayer(1, &countingPacer{}).Fill(context.Background(), &fakePage{}, nil)
	assert.Error(t, err)
}
