package schemas

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

// json is configured to keep non-ASCII prompts and HTML-ish option labels verbatim.
var json = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// DecodeError reports a schema document that does not have the expected shape.
type DecodeError struct {
	// Path locates the offending field, e.g. "questions[2].selectionWeight.7".
	Path   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid form schema: %s", e.Reason)
	}
	return fmt.Sprintf("invalid form schema at %s: %s", e.Path, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// wire types use pointers so that absent required fields can be told apart from empty ones.
type wireForm struct {
	SourceLink *string         `json:"formLink"`
	Title      *string         `json:"formTitle"`
	Questions  *[]wireQuestion `json:"questions"`
}

type wireQuestion struct {
	Text            *string        `json:"questionText"`
	Type            *string        `json:"questionType"`
	Options         *[]string      `json:"options"`
	SelectionWeight map[string]int `json:"selectionWeight"`
	PageIndex       *int           `json:"pageIndex"`
}

// EncodeForm serializes a form as an indented JSON document.
func EncodeForm(f *Form) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("cannot encode nil form")
	}
	// Required collections are written as [] rather than null so the document decodes again.
	out := f.Clone()
	if out.Questions == nil {
		out.Questions = []Question{}
	}
	for i := range out.Questions {
		if out.Questions[i].Options == nil {
			out.Questions[i].Options = []string{}
		}
	}
	data, err := json.MarshalIndent(out, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode form: %w", err)
	}
	return data, nil
}

// DecodeForm parses and validates a schema document. It fails fast with a *DecodeError
// instead of handing a half-valid structure to the editor or the replayer.
func DecodeForm(data []byte) (*Form, error) {
	var w wireForm
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, &DecodeError{Reason: "malformed JSON", Err: err}
	}
	if w.Title == nil {
		return nil, &DecodeError{Path: "formTitle", Reason: "field is required"}
	}
	if w.Questions == nil {
		return nil, &DecodeError{Path: "questions", Reason: "field is required"}
	}

	f := &Form{Title: *w.Title, Questions: make([]Question, 0, len(*w.Questions))}
	if w.SourceLink != nil {
		f.SourceLink = *w.SourceLink
	}

	pinned := make(map[int]int)
	for i, wq := range *w.Questions {
		q, err := decodeQuestion(i, wq)
		if err != nil {
			return nil, err
		}
		if q.PageIndex != nil {
			// Two questions pinned to one live block would both be answered there.
			if prev, ok := pinned[*q.PageIndex]; ok {
				return nil, &DecodeError{
					Path:   fmt.Sprintf("questions[%d].pageIndex", i),
					Reason: fmt.Sprintf("block %d is already used by questions[%d]", *q.PageIndex, prev),
				}
			}
			pinned[*q.PageIndex] = i
		}
		f.Questions = append(f.Questions, q)
	}
	return f, nil
}

// ReadForm decodes a schema document from r.
func ReadForm(r io.Reader) (*Form, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read form schema: %w", err)
	}
	return DecodeForm(data)
}

func decodeQuestion(i int, wq wireQuestion) (Question, error) {
	at := func(field string) string { return fmt.Sprintf("questions[%d].%s", i, field) }

	if wq.Text == nil {
		return Question{}, &DecodeError{Path: at("questionText"), Reason: "field is required"}
	}
	if wq.Type == nil {
		return Question{}, &DecodeError{Path: at("questionType"), Reason: "field is required"}
	}
	if wq.Options == nil {
		return Question{}, &DecodeError{Path: at("options"), Reason: "field is required"}
	}

	var qt QuestionType
	if err := qt.UnmarshalText([]byte(*wq.Type)); err != nil {
		return Question{}, &DecodeError{Path: at("questionType"), Reason: err.Error()}
	}

	q := Question{
		Text:      *wq.Text,
		Type:      qt,
		Options:   *wq.Options,
		PageIndex: wq.PageIndex,
	}
	if q.PageIndex != nil && *q.PageIndex < 0 {
		return Question{}, &DecodeError{Path: at("pageIndex"), Reason: "must not be negative"}
	}

	if wq.SelectionWeight != nil {
		keys := make([]string, 0, len(wq.SelectionWeight))
		for key := range wq.SelectionWeight {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			weight := wq.SelectionWeight[key]
			pos, err := strconv.Atoi(key)
			if err != nil || pos < 1 || pos > len(q.Options) {
				return Question{}, &DecodeError{
					Path:   at("selectionWeight." + key),
					Reason: fmt.Sprintf("key must be an option position between 1 and %d", len(q.Options)),
				}
			}
			if weight < MinWeight || weight > MaxWeight {
				return Question{}, &DecodeError{
					Path:   at("selectionWeight." + key),
					Reason: fmt.Sprintf("weight %d outside [%d,%d]", weight, MinWeight, MaxWeight),
				}
			}
		}
		q.SelectionWeight = wq.SelectionWeight
	}
	return q, nil
}
