package schemas_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/formrelay/api/schemas"
)

// -- Test Helpers --

func sampleForm() *schemas.Form {
	return &schemas.Form{
		SourceLink: "https://forms.yandex.ru/u/66dd673d5056905f78e71678/",
		Title:      "Опрос о завтраке",
		Questions: []schemas.Question{
			{
				Text:            "  Что вы едите утром?  ",
				Type:            schemas.SingleChoice,
				Options:         []string{"Кашу", "Яичницу", "Ничего"},
				SelectionWeight: map[string]int{"1": 9, "2": 1, "3": 0},
				PageIndex:       schemas.IntPtr(0),
			},
			{
				Text:    "Напитки",
				Type:    schemas.MultiChoice,
				Options: []string{"Чай", "Кофе", "Сок <100%>"},
			},
			{
				Text:    "Комментарий",
				Type:    schemas.UnknownQuestion,
				Options: []string{"Другое"},
			},
		},
	}
}

// -- Test Cases --

func TestConstants(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "single-choice", schemas.SingleChoice.String())
	assert.Equal(t, "multi-choice", schemas.MultiChoice.String())
	assert.Equal(t, "unknown", schemas.UnknownQuestion.String())
	assert.Equal(t, 0, schemas.MinWeight)
	assert.Equal(t, 10, schemas.MaxWeight)
	assert.Equal(t, 1, schemas.DefaultWeight)
}

// TestStructJSONTags pins the field names of the schema file, which older tooling reads.
func TestStructJSONTags(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name         string
		structRef    interface{}
		expectedTags map[string]string
	}{
		{
			name:      "Form",
			structRef: schemas.Form{},
			expectedTags: map[string]string{
				"SourceLink": "formLink,omitempty",
				"Title":      "formTitle",
				"Questions":  "questions",
			},
		},
		{
			name:      "Question",
			structRef: schemas.Question{},
			expectedTags: map[string]string{
				"Text":            "questionText",
				"Type":            "questionType",
				"Options":         "options",
				"SelectionWeight": "selectionWeight,omitempty",
				"PageIndex":       "pageIndex,omitempty",
			},
		},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			structType := reflect.TypeOf(tt.structRef)
			for fieldName, expectedTag := range tt.expectedTags {
				field, found := structType.FieldByName(fieldName)
				require.True(t, found, "Field '%s' not found in struct '%s'", fieldName, tt.name)
				assert.Equal(t, expectedTag, field.Tag.Get("json"), "JSON tag mismatch for field '%s.%s'", tt.name, fieldName)
			}
		})
	}
}

func TestSerializationCycle(t *testing.T) {
	t.Parallel()

	t.Run("full form survives a round trip", func(t *testing.T) {
		original := sampleForm()
		data, err := schemas.EncodeForm(original)
		require.NoError(t, err)

		decoded, err := schemas.DecodeForm(data)
		require.NoError(t, err)
		if diff := cmp.Diff(original, decoded); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("absent optional fields stay absent", func(t *testing.T) {
		original := &schemas.Form{
			Title: "No link",
			Questions: []schemas.Question{
				{Text: "Q", Type: schemas.MultiChoice, Options: []string{"a"}},
			},
		}
		data, err := schemas.EncodeForm(original)
		require.NoError(t, err)

		text := string(data)
		assert.NotContains(t, text, "formLink")
		assert.NotContains(t, text, "selectionWeight")
		assert.NotContains(t, text, "pageIndex")

		decoded, err := schemas.DecodeForm(data)
		require.NoError(t, err)
		assert.Empty(t, decoded.SourceLink)
		assert.Nil(t, decoded.Questions[0].SelectionWeight)
		assert.Nil(t, decoded.Questions[0].PageIndex)
	})

	t.Run("wire tokens and readable text", func(t *testing.T) {
		data, err := schemas.EncodeForm(sampleForm())
		require.NoError(t, err)
		text := string(data)
		assert.Contains(t, text, `"questionType": "radiobutton"`)
		assert.Contains(t, text, `"questionType": "checkbox"`)
		assert.Contains(t, text, `"questionType": "unknown"`)
		assert.Contains(t, text, "Опрос о завтраке")
		assert.Contains(t, text, "Сок <100%>")
	})

	t.Run("nil collections encode as empty arrays", func(t *testing.T) {
		data, err := schemas.EncodeForm(&schemas.Form{Title: "Empty"})
		require.NoError(t, err)
		decoded, err := schemas.DecodeForm(data)
		require.NoError(t, err)
		assert.Empty(t, decoded.Questions)
	})
}

func TestDecodeForm_LegacyRadiogroup(t *testing.T) {
	t.Parallel()
	doc := `{
    "formTitle": "Legacy",
    "questions": [
        {"questionText": "Pick", "questionType": "radiogroup", "options": ["a", "b"]}
    ]
}`
	form, err := schemas.DecodeForm([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, schemas.SingleChoice, form.Questions[0].Type)
}

func TestDecodeForm_ShapeErrors(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		doc      string
		wantPath string
	}{
		{"malformed json", `{"formTitle": `, ""},
		{"missing title", `{"questions": []}`, "formTitle"},
		{"missing questions", `{"formTitle": "x"}`, "questions"},
		{"null questions", `{"formTitle": "x", "questions": null}`, "questions"},
		{"missing text", `{"formTitle": "x", "questions": [{"questionType": "checkbox", "options": []}]}`, "questions[0].questionText"},
		{"missing options", `{"formTitle": "x", "questions": [{"questionText": "q", "questionType": "checkbox"}]}`, "questions[0].options"},
		{"bad type", `{"formTitle": "x", "questions": [{"questionText": "q", "questionType": "slider", "options": []}]}`, "questions[0].questionType"},
		{"weight key out of range", `{"formTitle": "x", "questions": [{"questionText": "q", "questionType": "checkbox", "options": ["a"], "selectionWeight": {"2": 1}}]}`, "questions[0].selectionWeight.2"},
		{"weight key not a number", `{"formTitle": "x", "questions": [{"questionText": "q", "questionType": "checkbox", "options": ["a"], "selectionWeight": {"one": 1}}]}`, "questions[0].selectionWeight.one"},
		{"weight value out of range", `{"formTitle": "x", "questions": [{"questionText": "q", "questionType": "checkbox", "options": ["a"], "selectionWeight": {"1": 11}}]}`, "questions[0].selectionWeight.1"},
		{"negative page index", `{"formTitle": "x", "questions": [{"questionText": "q", "questionType": "checkbox", "options": ["a"], "pageIndex": -1}]}`, "questions[0].pageIndex"},
		{"duplicate page index", `{"formTitle": "x", "questions": [{"questionText": "q", "questionType": "checkbox", "options": ["a"], "pageIndex": 2}, {"questionText": "r", "questionType": "checkbox", "options": ["a"], "pageIndex": 2}]}`, "questions[1].pageIndex"},
	}

	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := schemas.DecodeForm([]byte(tt.doc))
			require.Error(t, err)

			var decodeErr *schemas.DecodeError
			require.True(t, errors.As(err, &decodeErr), "expected *DecodeError, got %T", err)
			assert.Equal(t, tt.wantPath, decodeErr.Path)
		})
	}
}

func TestDecodeForm_FirstBadWeightKeyIsStable(t *testing.T) {
	t.Parallel()
	doc := []byte(`{"formTitle": "x", "questions": [{"questionText": "q", "questionType": "checkbox",
		"options": ["a", "b"], "selectionWeight": {"9": 1, "5": 1, "7": 1, "1": 1}}]}`)

	for i := 0; i < 50; i++ {
		_, err := schemas.DecodeForm(doc)
		var decodeErr *schemas.DecodeError
		require.True(t, errors.As(err, &decodeErr))
		require.Equal(t, "questions[0].selectionWeight.5", decodeErr.Path)
	}
}

func TestQuestion_WeightVector(t *testing.T) {
	t.Parallel()

	t.Run("uniform when no weights", func(t *testing.T) {
		q := schemas.Question{Options: []string{"a", "b", "c"}}
		assert.Equal(t, []int{1, 1, 1}, q.WeightVector(3))
	})

	t.Run("partial map defaults to one", func(t *testing.T) {
		q := schemas.Question{Options: []string{"a", "b", "c"}, SelectionWeight: map[string]int{"2": 7}}
		assert.Equal(t, []int{1, 7, 1}, q.WeightVector(3))
	})

	t.Run("live count beyond captured options", func(t *testing.T) {
		q := schemas.Question{Options: []string{"a", "b"}, SelectionWeight: map[string]int{"1": 0, "2": 5}}
		assert.Equal(t, []int{0, 5, 1, 1}, q.WeightVector(4))
	})

	t.Run("live count below captured options", func(t *testing.T) {
		q := schemas.Question{Options: []string{"a", "b", "c"}, SelectionWeight: map[string]int{"3": 4}}
		assert.Equal(t, []int{1}, q.WeightVector(1))
	})

	t.Run("zero live options", func(t *testing.T) {
		q := schemas.Question{Options: []string{"a"}}
		assert.Nil(t, q.WeightVector(0))
	})
}

func TestForm_CloneIsDeep(t *testing.T) {
	t.Parallel()
	original := sampleForm()
	clone := original.Clone()

	clone.Questions[0].Options[0] = "changed"
	clone.Questions[0].SelectionWeight["1"] = 3
	*clone.Questions[0].PageIndex = 5

	assert.Equal(t, "Кашу", original.Questions[0].Options[0])
	assert.Equal(t, 9, original.Questions[0].SelectionWeight["1"])
	assert.Equal(t, 0, *original.Questions[0].PageIndex)
}

func TestBrowserState_Empty(t *testing.T) {
	t.Parallel()
	var nilState *schemas.BrowserState
	assert.True(t, nilState.Empty())
	assert.True(t, (&schemas.BrowserState{}).Empty())
	assert.False(t, (&schemas.BrowserState{Cookies: []schemas.Cookie{{Name: "yandexuid"}}}).Empty())
}
