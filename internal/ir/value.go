package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// AnswerKind names an AnswerValue variant. It is the tag used on the wire.
type AnswerKind string

const (
	KindSkipped    AnswerKind = "skipped"
	KindBool       AnswerKind = "bool"
	KindNumber     AnswerKind = "number"
	KindText       AnswerKind = "text"
	KindDate       AnswerKind = "date"
	KindChoices    AnswerKind = "choices"
	KindCollection AnswerKind = "collection"
)

// AnswerValue is a sealed interface over the answer variants.
// Only Skipped, Bool, Number, Text, Date, Choices and Collection implement it.
type AnswerValue interface {
	Kind() AnswerKind
	answerValue() // Sealed
}

// Skipped records that an optional step was completed without an answer.
type Skipped struct{}

func (Skipped) Kind() AnswerKind { return KindSkipped }
func (Skipped) answerValue()     {}

// Bool is a yes/no answer.
type Bool bool

func (Bool) Kind() AnswerKind { return KindBool }
func (Bool) answerValue()     {}

// Number is a numeric, scale or time-interval answer.
type Number float64

func (Number) Kind() AnswerKind { return KindNumber }
func (Number) answerValue()     {}

// Text is a free-text answer.
type Text string

func (Text) Kind() AnswerKind { return KindText }
func (Text) answerValue()     {}

// Date is a date or date-time answer.
type Date time.Time

func (Date) Kind() AnswerKind { return KindDate }
func (Date) answerValue()     {}

// Time returns the answer as a time.Time.
func (d Date) Time() time.Time { return time.Time(d) }

// Choices is the set of selected option values of a choice question.
// Order is the selection order reported by the presenter.
type Choices []string

func (Choices) Kind() AnswerKind { return KindChoices }
func (Choices) answerValue()     {}

// Contains reports whether v was selected.
func (c Choices) Contains(v string) bool {
	return slices.Contains(c, v)
}

// Collection holds the sub-results of a composite (form) step.
type Collection []StepResult

func (Collection) Kind() AnswerKind { return KindCollection }
func (Collection) answerValue()     {}

// answerEnvelope is the wire shape of an AnswerValue: {"kind": ..., "value": ...}.
type answerEnvelope struct {
	Kind  AnswerKind      `json:"kind"`
	Value json.RawMessage `json:"value,omitempty"`
}

// MarshalAnswer encodes an AnswerValue with its kind tag.
// A nil answer encodes as JSON null.
func MarshalAnswer(v AnswerValue) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}

	var (
		raw []byte
		err error
	)
	switch val := v.(type) {
	case Skipped:
		raw = nil
	case Bool:
		raw, err = json.Marshal(bool(val))
	case Number:
		raw, err = json.Marshal(float64(val))
	case Text:
		raw, err = json.Marshal(string(val))
	case Date:
		raw, err = json.Marshal(val.Time().UTC().Format(time.RFC3339Nano))
	case Choices:
		if val == nil {
			val = Choices{}
		}
		raw, err = json.Marshal([]string(val))
	case Collection:
		if val == nil {
			val = Collection{}
		}
		raw, err = json.Marshal([]StepResult(val))
	default:
		return nil, fmt.Errorf("unknown AnswerValue type: %T", v)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal %s answer: %w", v.Kind(), err)
	}

	return json.Marshal(answerEnvelope{Kind: v.Kind(), Value: raw})
}

// UnmarshalAnswer decodes the tagged encoding produced by MarshalAnswer.
// JSON null decodes to a nil AnswerValue.
func UnmarshalAnswer(data []byte) (AnswerValue, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}

	var env answerEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("answer envelope: %w", err)
	}

	switch env.Kind {
	case KindSkipped:
		return Skipped{}, nil
	case KindBool:
		var b bool
		if err := json.Unmarshal(env.Value, &b); err != nil {
			return nil, fmt.Errorf("bool answer: %w", err)
		}
		return Bool(b), nil
	case KindNumber:
		var n float64
		if err := json.Unmarshal(env.Value, &n); err != nil {
			return nil, fmt.Errorf("number answer: %w", err)
		}
		return Number(n), nil
	case KindText:
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return nil, fmt.Errorf("text answer: %w", err)
		}
		return Text(s), nil
	case KindDate:
		var s string
		if err := json.Unmarshal(env.Value, &s); err != nil {
			return nil, fmt.Errorf("date answer: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("date answer: %w", err)
		}
		return Date(t), nil
	case KindChoices:
		var c []string
		if err := json.Unmarshal(env.Value, &c); err != nil {
			return nil, fmt.Errorf("choices answer: %w", err)
		}
		return Choices(c), nil
	case KindCollection:
		var rs []StepResult
		if err := json.Unmarshal(env.Value, &rs); err != nil {
			return nil, fmt.Errorf("collection answer: %w", err)
		}
		return Collection(rs), nil
	default:
		return nil, fmt.Errorf("unknown answer kind %q", env.Kind)
	}
}

// stepResultWire mirrors StepResult with the answer kept raw.
type stepResultWire struct {
	ID        StepID          `json:"id"`
	Answer    json.RawMessage `json:"answer"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   time.Time       `json:"ended_at"`
}

// MarshalJSON implements json.Marshaler for StepResult.
func (r StepResult) MarshalJSON() ([]byte, error) {
	answer, err := MarshalAnswer(r.Answer)
	if err != nil {
		return nil, fmt.Errorf("step result %q: %w", r.ID, err)
	}
	return json.Marshal(stepResultWire{
		ID:        r.ID,
		Answer:    answer,
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler for StepResult.
func (r *StepResult) UnmarshalJSON(data []byte) error {
	var w stepResultWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	answer, err := UnmarshalAnswer(w.Answer)
	if err != nil {
		return fmt.Errorf("step result %q: %w", w.ID, err)
	}
	*r = StepResult{
		ID:        w.ID,
		Answer:    answer,
		StartedAt: w.StartedAt,
		EndedAt:   w.EndedAt,
	}
	return nil
}

// AnswerFromNative converts a decoded YAML/JSON/CUE value into an AnswerValue.
//
// Mapping: nil → Skipped, bool → Bool, any number → Number, string → Text,
// time.Time → Date, list of strings → Choices, map → Collection (keys are the
// sub-result identifiers, in sorted order). hint forces a kind where the
// native type is ambiguous; today only KindDate (parse a string as RFC 3339)
// and KindChoices (a single string becomes a one-element set) are honoured.
func AnswerFromNative(v any, hint AnswerKind) (AnswerValue, error) {
	switch val := v.(type) {
	case nil:
		return Skipped{}, nil
	case AnswerValue:
		return val, nil
	case bool:
		return Bool(val), nil
	case int:
		return Number(float64(val)), nil
	case int64:
		return Number(float64(val)), nil
	case uint64:
		return Number(float64(val)), nil
	case float64:
		return Number(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", val, err)
		}
		return Number(f), nil
	case time.Time:
		return Date(val), nil
	case string:
		switch hint {
		case KindDate:
			t, err := time.Parse(time.RFC3339Nano, val)
			if err != nil {
				return nil, fmt.Errorf("date %q: %w", val, err)
			}
			return Date(t), nil
		case KindChoices:
			return Choices{val}, nil
		}
		return Text(val), nil
	case []string:
		return Choices(slices.Clone(val)), nil
	case []any:
		choices := make(Choices, len(val))
		for i, elem := range val {
			s, ok := elem.(string)
			if !ok {
				s = fmt.Sprint(elem)
			}
			choices[i] = s
		}
		return choices, nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		coll := make(Collection, 0, len(keys))
		for _, k := range keys {
			child, err := AnswerFromNative(val[k], "")
			if err != nil {
				return nil, fmt.Errorf("sub-result %q: %w", k, err)
			}
			coll = append(coll, StepResult{ID: StepID(k), Answer: child})
		}
		return coll, nil
	default:
		return nil, fmt.Errorf("unsupported answer type: %T", v)
	}
}
