package store

import (
	"fmt"
	"time"

	"github.com/roach88/stepnav/internal/ir"
)

// formatTime renders t as RFC 3339 UTC with nanoseconds. The zero time is
// stored as the empty string.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

// marshalAnswer converts an answer to its tagged JSON TEXT for storage.
func marshalAnswer(v ir.AnswerValue) (string, error) {
	data, err := ir.MarshalAnswer(v)
	if err != nil {
		return "", fmt.Errorf("marshal answer: %w", err)
	}
	return string(data), nil
}

func unmarshalAnswer(data string) (ir.AnswerValue, error) {
	v, err := ir.UnmarshalAnswer([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal answer: %w", err)
	}
	return v, nil
}
