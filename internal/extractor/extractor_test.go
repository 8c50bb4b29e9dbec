package extractor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/formrelay/api/schemas"
	"github.com/xkilldash9x/formrelay/internal/config"
	"github.com/xkilldash9x/formrelay/internal/mocks"
)

const formLink = "https://forms.yandex.ru/u/66dd673d5056905f78e71678/"

// twoQuestionPage mirrors the Yandex Forms markup for one radio and one checkbox question.
const twoQuestionPage = `<html><body>
<div class="SurveyPage">
  <h1 class="SurveyPage-Name">
     Breakfast survey
  </h1>
  <div class="QuestionMarkup">
    <div class="QuestionMarkup-Column QuestionMarkup-Column_column_left"><p> Pick one </p></div>
    <div class="QuestionMarkup-Column">
      <span role="radiogroup">
        <label><input type="radio" name="q1"> A </label>
        <label><input type="radio" name="q1">B</label>
      </span>
    </div>
  </div>
  <div class="QuestionMarkup">
    <div class="QuestionMarkup-Column_column_left"><p>Pick many</p></div>
    <div class="QuestionMarkup-Column">
      <label><input type="checkbox" name="q2">X</label>
      <label><input type="checkbox" name="q2">Y</label>
      <label><input type="checkbox" name="q2">  Z</label>
    </div>
  </div>
</div>
<button type="submit">Send</button>
</body></html>`

func newTestExtractor(repo schemas.FormRepository) (*Extractor, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return New(config.NewDefaultConfig().Form(), repo, zap.New(core)), logs
}

func TestParse_TwoQuestions(t *testing.T) {
	e, _ := newTestExtractor(nil)

	form, report, err := e.Parse(formLink, twoQuestionPage)
	require.NoError(t, err)

	assert.Equal(t, formLink, form.SourceLink)
	assert.Equal(t, "Breakfast survey", form.Title)
	require.Len(t, form.Questions, 2)

	assert.Equal(t, schemas.SingleChoice, form.Questions[0].Type)
	assert.Equal(t, []string{"A", "B"}, form.Questions[0].Options)
	assert.Equal(t, " Pick one ", form.Questions[0].Text, "prompt text stays raw")

	assert.Equal(t, schemas.MultiChoice, form.Questions[1].Type)
	assert.Equal(t, []string{"X", "Y", "Z"}, form.Questions[1].Options)

	assert.Nil(t, form.Questions[0].SelectionWeight)
	require.NotNil(t, form.Questions[1].PageIndex)
	assert.Equal(t, 1, *form.Questions[1].PageIndex)

	assert.Equal(t, 2, report.Blocks)
	assert.Empty(t, report.Skipped)
}

func TestParse_SkipsIncompleteBlocks(t *testing.T) {
	page := `<div class="SurveyPage"><div class="SurveyPage-Name">T</div>
  <div class="QuestionMarkup"><div class="QuestionMarkup-Column_column_left"></div>
    <label><input type="radio">orphan</label><span role="radiogroup"></span></div>
  <div class="QuestionMarkup"><div class="QuestionMarkup-Column_column_left"><p>No options</p></div></div>
  <div class="QuestionMarkup"><div class="QuestionMarkup-Column_column_left"><p>Kept</p></div>
    <label><input type="text">free text</label></div>
</div>`
	e, logs := newTestExtractor(nil)

	form, report, err := e.Parse(formLink, page)
	require.NoError(t, err)

	require.Len(t, form.Questions, 1)
	kept := form.Questions[0]
	assert.Equal(t, "Kept", kept.Text)
	assert.Equal(t, schemas.UnknownQuestion, kept.Type)
	require.NotNil(t, kept.PageIndex)
	assert.Equal(t, 2, *kept.PageIndex, "the live block index survives skipped blocks")

	assert.Equal(t, []SkippedBlock{
		{Index: 0, Reason: ReasonNoPrompt},
		{Index: 1, Reason: ReasonNoOptions},
	}, report.Skipped)
	assert.Equal(t, 2, logs.FilterMessage("Skipping question block.").Len())
}

func TestParse_RadiogroupMarkerWinsOverCheckbox(t *testing.T) {
	page := `<div class="SurveyPage"><div class="SurveyPage-Name">T</div>
  <div class="QuestionMarkup" data-kind="checkbox"><div class="QuestionMarkup-Column_column_left"><p>Q</p></div>
    <div role="radiogroup"><label><input type="radio">a</label></div></div></div>`
	e, _ := newTestExtractor(nil)

	form, _, err := e.Parse(formLink, page)
	require.NoError(t, err)
	assert.Equal(t, schemas.SingleChoice, form.Questions[0].Type)
}

func TestParse_HardFailures(t *testing.T) {
	testCases := []struct {
		name    string
		html    string
		wantErr error
	}{
		{"no container", `<div class="Other"></div>`, ErrContainerNotFound},
		{"no title", `<div class="SurveyPage"><div class="QuestionMarkup"></div></div>`, ErrTitleNotFound},
		{"no questions", `<div class="SurveyPage"><div class="SurveyPage-Name">T</div></div>`, ErrNoQuestions},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newTestExtractor(nil)
			form, _, err := e.Parse(formLink, tc.html)
			require.Error(t, err)
			assert.Nil(t, form)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.ErrorIs(t, err, ErrFormUnreadable)
		})
	}
}

func TestParse_CustomSelectors(t *testing.T) {
	cfg := config.NewDefaultConfig().Form()
	cfg.Selectors.Container = "form#survey"
	cfg.Selectors.Title = "h2"
	cfg.Selectors.Question = "fieldset"
	cfg.Selectors.Prompt = "legend"
	cfg.Markers.SingleChoice = `type="radio"`
	e := New(cfg, nil, zap.NewNop())

	form, _, err := e.Parse("", `<form id="survey"><h2>Custom</h2>
<fieldset><legend>Color</legend><label><input type="radio">Red</label><label><input type="radio">Blue</label></fieldset>
</form>`)
	require.NoError(t, err)
	assert.Equal(t, "Custom", form.Title)
	require.Len(t, form.Questions, 1)
	assert.Equal(t, schemas.SingleChoice, form.Questions[0].Type)
	assert.Equal(t, []string{"Red", "Blue"}, form.Questions[0].Options)
}

func TestExtractAndSave(t *testing.T) {
	ctx := context.Background()

	t.Run("saves the parsed form for the owner", func(t *testing.T) {
		page := new(mocks.MockPageSnapshotter)
		page.On("CurrentURL", mock.Anything).Return(formLink, nil)
		page.On("HTML", mock.Anything).Return(twoQuestionPage, nil)

		repo := new(mocks.MockFormRepository)
		repo.On("Save", mock.Anything, "owner-1", mock.MatchedBy(func(f *schemas.Form) bool {
			return f.Title == "Breakfast survey" && len(f.Questions) == 2
		})).Return(nil)

		e, _ := newTestExtractor(repo)
		form, _, err := e.ExtractAndSave(ctx, page, "owner-1")
		require.NoError(t, err)
		assert.Equal(t, formLink, form.SourceLink)
		repo.AssertExpectations(t)
		page.AssertExpectations(t)
	})

	t.Run("nothing is written when extraction fails", func(t *testing.T) {
		page := new(mocks.MockPageSnapshotter)
		page.On("CurrentURL", mock.Anything).Return(formLink, nil)
		page.On("HTML", mock.Anything).Return(`<html></html>`, nil)
		repo := new(mocks.MockFormRepository)

		e, _ := newTestExtractor(repo)
		_, _, err := e.ExtractAndSave(ctx, page, "owner-1")
		assert.ErrorIs(t, err, ErrFormUnreadable)
		repo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("snapshot failure is unreadable", func(t *testing.T) {
		page := new(mocks.MockPageSnapshotter)
		page.On("CurrentURL", mock.Anything).Return(formLink, nil)
		page.On("HTML", mock.Anything).Return("", errors.New("target closed"))

		e, _ := newTestExtractor(new(mocks.MockFormRepository))
		_, _, err := e.ExtractAndSave(ctx, page, "owner-1")
		assert.ErrorIs(t, err, ErrFormUnreadable)
		assert.ErrorContains(t, err, "target closed")
	})

	t.Run("save failure surfaces", func(t *testing.T) {
		page := new(mocks.MockPageSnapshotter)
		page.On("CurrentURL", mock.Anything).Return(formLink, nil)
		page.On("HTML", mock.Anything).Return(twoQuestionPage, nil)
		repo := new(mocks.MockFormRepository)
		repo.On("Save", mock.Anything, "owner-1", mock.Anything).Return(errors.New("disk full"))

		e, _ := newTestExtractor(repo)
		_, _, err := e.ExtractAndSave(ctx, page, "owner-1")
		assert.ErrorContains(t, err, "disk full")
		assert.NotErrorIs(t, err, ErrFormUnreadable)
	})
}
