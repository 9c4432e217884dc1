package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Answer is the student's response to one question. The concrete type
// depends on the question type:
//   - ChoiceAnswer for multiple-choice
//   - TrueFalseAnswer for true/false
//   - TextAnswer for short-answer and essay
//
// A nil Answer is never valid; use BlankAnswer for unanswered questions.
type Answer interface {
	// QuestionType is the type the answer was built for.
	QuestionType() QuestionType
	// WireValue is the text sent to the backend on submission.
	WireValue() string
	// Blank reports whether the student left the question unanswered.
	Blank() bool
}

// ChoiceAnswer selects one option of a multiple-choice question.
// Index is -1 for a blank answer.
type ChoiceAnswer struct {
	Index int
	Text  string
}

func (a ChoiceAnswer) QuestionType() QuestionType { return QuestionTypeMultipleChoice }
func (a ChoiceAnswer) WireValue() string          { return a.Text }
func (a ChoiceAnswer) Blank() bool                { return a.Index < 0 }

// TrueFalseAnswer answers a true/false question. Set is false for a blank answer.
type TrueFalseAnswer struct {
	Value bool
	Set   bool
}

func (a TrueFalseAnswer) QuestionType() QuestionType { return QuestionTypeTrueFalse }
func (a TrueFalseAnswer) Blank() bool                { return !a.Set }

func (a TrueFalseAnswer) WireValue() string {
	if !a.Set {
		return ""
	}
	return strconv.FormatBool(a.Value)
}

// TextAnswer is free text for short-answer and essay questions.
type TextAnswer struct {
	Type QuestionType
	Text string
}

func (a TextAnswer) QuestionType() QuestionType { return a.Type }
func (a TextAnswer) WireValue() string          { return a.Text }
func (a TextAnswer) Blank() bool                { return strings.TrimSpace(a.Text) == "" }

// BlankAnswer returns the unanswered value for q.
func BlankAnswer(q *QuestionState) Answer {
	switch q.Type {
	case QuestionTypeMultipleChoice:
		return ChoiceAnswer{Index: -1}
	case QuestionTypeTrueFalse:
		return TrueFalseAnswer{}
	default:
		return TextAnswer{Type: q.Type}
	}
}

// ParseAnswer converts raw UI input into the answer variant for q.
// Empty input yields BlankAnswer. Multiple-choice input may be either the
// zero-based option index or the exact option text.
func ParseAnswer(q *QuestionState, raw string) (Answer, error) {
	if raw == "" {
		return BlankAnswer(q), nil
	}

	switch q.Type {
	case QuestionTypeMultipleChoice:
		for i, opt := range q.Options {
			if opt == raw {
				return ChoiceAnswer{Index: i, Text: opt}, nil
			}
		}
		idx, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || idx < 0 || idx >= len(q.Options) {
			return nil, fmt.Errorf("%w: %q is not an option of question %s", ErrInvalidAnswer, raw, q.ID)
		}
		return ChoiceAnswer{Index: idx, Text: q.Options[idx]}, nil

	case QuestionTypeTrueFalse:
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not true or false", ErrInvalidAnswer, raw)
		}
		return TrueFalseAnswer{Value: v, Set: true}, nil

	case QuestionTypeShortAnswer, QuestionTypeEssay:
		return TextAnswer{Type: q.Type, Text: raw}, nil
	}

	return nil, fmt.Errorf("%w: unsupported question type %q", ErrInvalidAnswer, q.Type)
}

// ReconcileAnswer checks a restored answer against the question it is
// attached to and rebuilds it from its wire value. It reports false when the
// answer no longer fits q, e.g. a different question type or an option that
// is not offered.
func ReconcileAnswer(q *QuestionState, a Answer) (Answer, bool) {
	if a == nil || a.QuestionType() != q.Type {
		return nil, false
	}
	if a.Blank() {
		return BlankAnswer(q), true
	}
	out, err := ParseAnswer(q, a.WireValue())
	if err != nil {
		return nil, false
	}
	return out, true
}

// storedAnswer is the JSON form used for autosaved drafts.
type storedAnswer struct {
	Type   QuestionType `json:"type"`
	Text   string       `json:"text,omitempty"`
	Option *int         `json:"option,omitempty"`
	Value  *bool        `json:"value,omitempty"`
}

// MarshalAnswer encodes an answer for storage.
func MarshalAnswer(a Answer) ([]byte, error) {
	s := storedAnswer{Type: a.QuestionType()}
	switch v := a.(type) {
	case ChoiceAnswer:
		if !v.Blank() {
			idx := v.Index
			s.Option = &idx
			s.Text = v.Text
		}
	case TrueFalseAnswer:
		if v.Set {
			val := v.Value
			s.Value = &val
		}
	case TextAnswer:
		s.Text = v.Text
	default:
		return nil, fmt.Errorf("unknown answer type %T", a)
	}
	return json.Marshal(s)
}

// UnmarshalAnswer decodes an answer produced by MarshalAnswer.
func UnmarshalAnswer(data []byte) (Answer, error) {
	var s storedAnswer
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	switch s.Type {
	case QuestionTypeMultipleChoice:
		if s.Option == nil {
			return ChoiceAnswer{Index: -1}, nil
		}
		return ChoiceAnswer{Index: *s.Option, Text: s.Text}, nil
	case QuestionTypeTrueFalse:
		if s.Value == nil {
			return TrueFalseAnswer{}, nil
		}
		return TrueFalseAnswer{Value: *s.Value, Set: true}, nil
	case QuestionTypeShortAnswer, QuestionTypeEssay:
		return TextAnswer{Type: s.Type, Text: s.Text}, nil
	}
	return nil, fmt.Errorf("%w: unsupported question type %q", ErrInvalidAnswer, s.Type)
}
