package schemas

import (
	"fmt"
	"strconv"
)

// -- Form Schema --

// QuestionType classifies how a question accepts answers.
type QuestionType string

const (
	// SingleChoice questions render a radio group; exactly one option is selected.
	SingleChoice QuestionType = "single-choice"
	// MultiChoice questions render checkboxes; any non-empty subset may be selected.
	MultiChoice QuestionType = "multi-choice"
	// UnknownQuestion is a valid terminal classification. Replay leaves such questions untouched.
	UnknownQuestion QuestionType = "unknown"
)

// Wire tokens used by the schema file for each QuestionType.
const (
	wireRadio    = "radiobutton"
	wireCheckbox = "checkbox"
	wireUnknown  = "unknown"
	// wireLegacyRadio is what older schema files used for radio groups.
	wireLegacyRadio = "radiogroup"
)

// MinWeight and MaxWeight bound a selection weight.
const (
	MinWeight = 0
	MaxWeight = 10
)

// DefaultWeight applies to any option position without an explicit weight.
const DefaultWeight = 1

func (t QuestionType) String() string { return string(t) }

// Valid reports whether t is one of the known classifications.
func (t QuestionType) Valid() bool {
	switch t {
	case SingleChoice, MultiChoice, UnknownQuestion:
		return true
	}
	return false
}

// MarshalText writes the wire token for t.
func (t QuestionType) MarshalText() ([]byte, error) {
	switch t {
	case SingleChoice:
		return []byte(wireRadio), nil
	case MultiChoice:
		return []byte(wireCheckbox), nil
	case UnknownQuestion, "":
		return []byte(wireUnknown), nil
	}
	return nil, fmt.Errorf("unknown question type %q", string(t))
}

// UnmarshalText parses a wire token. The legacy "radiogroup" token is accepted as SingleChoice.
func (t *QuestionType) UnmarshalText(b []byte) error {
	switch string(b) {
	case wireRadio, wireLegacyRadio:
		*t = SingleChoice
	case wireCheckbox:
		*t = MultiChoice
	case wireUnknown:
		*t = UnknownQuestion
	default:
		return fmt.Errorf("unknown question type %q", string(b))
	}
	return nil
}

// Form is the normalized schema of one rendered form.
// Question order is significant: it mirrors the on-page order.
type Form struct {
	SourceLink string     `json:"formLink,omitempty"`
	Title      string     `json:"formTitle"`
	Questions  []Question `json:"questions"`
}

// Question is one question block of a form.
type Question struct {
	// Text is the raw prompt; surrounding whitespace is preserved as extracted.
	Text    string       `json:"questionText"`
	Type    QuestionType `json:"questionType"`
	Options []string     `json:"options"`
	// SelectionWeight maps a 1-based option position ("1", "2", ...) to a weight in [0,10].
	// Positions without an entry weigh DefaultWeight.
	SelectionWeight map[string]int `json:"selectionWeight,omitempty"`
	// PageIndex is the 0-based index of the question block on the live page this question was
	// extracted from. Absent in schemas written before block indices were recorded.
	PageIndex *int `json:"pageIndex,omitempty"`
}

// WeightAt returns the weight for the 1-based option position.
func (q *Question) WeightAt(position int) int {
	if q.SelectionWeight == nil {
		return DefaultWeight
	}
	if w, ok := q.SelectionWeight[strconv.Itoa(position)]; ok {
		return w
	}
	return DefaultWeight
}

// WeightVector builds a weight per option for a live option count of n.
// Positions beyond the captured options still default to DefaultWeight.
func (q *Question) WeightVector(n int) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		out[i] = q.WeightAt(i + 1)
	}
	return out
}

// Clone returns a deep copy of the form.
func (f *Form) Clone() *Form {
	if f == nil {
		return nil
	}
	c := &Form{SourceLink: f.SourceLink, Title: f.Title}
	if f.Questions != nil {
		c.Questions = make([]Question, len(f.Questions))
		for i, q := range f.Questions {
			cq := Question{Text: q.Text, Type: q.Type}
			if q.Options != nil {
				cq.Options = append([]string(nil), q.Options...)
			}
			if q.SelectionWeight != nil {
				cq.SelectionWeight = make(map[string]int, len(q.SelectionWeight))
				for k, v := range q.SelectionWeight {
					cq.SelectionWeight[k] = v
				}
			}
			if q.PageIndex != nil {
				idx := *q.PageIndex
				cq.PageIndex = &idx
			}
			c.Questions[i] = cq
		}
	}
	return c
}

// IntPtr is a small helper for optional integer fields.
func IntPtr(v int) *int { return &v }
