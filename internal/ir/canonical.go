package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces deterministic JSON for content digests.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
//  2. No HTML escaping (< > & are NOT escaped)
//  3. Strings are NFC normalized
//  4. Numbers use the shortest round-trip representation; NaN and Inf are rejected
//  5. Times are RFC 3339 UTC with nanoseconds
//
// Supported inputs: nil, string, bool, int, int64, float64, time.Time,
// []any, map[string]any, AnswerValue, StepResult and TaskResult.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		return writeCanonicalString(buf, val)
	case StepID:
		return writeCanonicalString(buf, string(val))
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("non-finite number in canonical JSON: %v", val)
		}
		buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case time.Time:
		return writeCanonicalString(buf, val.UTC().Format(time.RFC3339Nano))
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		return writeCanonicalObject(buf, val)
	case AnswerValue:
		return writeCanonical(buf, answerToNative(val))
	case StepResult:
		return writeCanonical(buf, stepResultToNative(val))
	case TaskResult:
		return writeCanonical(buf, taskResultToNative(val))
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeCanonicalObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeCanonicalString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := writeCanonical(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// writeCanonicalString writes a JSON string with NFC normalization and no
// HTML escaping. U+2028 and U+2029 are written literally.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	normalized := norm.NFC.String(s)

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return err
	}
	out := bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))
	buf.Write(unescapeLineSeparators(out))
	return nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters. An escape preceded by an odd
// number of backslashes is literal text and is left alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+5 < len(data) && data[i+1] == 'u' &&
			data[i+2] == '2' && data[i+3] == '0' && data[i+4] == '2' &&
			(data[i+5] == '8' || data[i+5] == '9') {
			backslashes := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				backslashes++
			}
			if backslashes%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

// compareKeysUTF16 orders strings by UTF-16 code units.
// Go's native string comparison uses UTF-8 bytes, which differs for
// characters outside the BMP.
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

func answerToNative(v AnswerValue) any {
	switch val := v.(type) {
	case Skipped:
		return map[string]any{"kind": string(KindSkipped)}
	case Bool:
		return map[string]any{"kind": string(KindBool), "value": bool(val)}
	case Number:
		return map[string]any{"kind": string(KindNumber), "value": float64(val)}
	case Text:
		return map[string]any{"kind": string(KindText), "value": string(val)}
	case Date:
		return map[string]any{"kind": string(KindDate), "value": val.Time()}
	case Choices:
		items := make([]any, len(val))
		for i, c := range val {
			items[i] = c
		}
		return map[string]any{"kind": string(KindChoices), "value": items}
	case Collection:
		items := make([]any, len(val))
		for i, r := range val {
			items[i] = stepResultToNative(r)
		}
		return map[string]any{"kind": string(KindCollection), "value": items}
	default:
		return nil
	}
}

func stepResultToNative(r StepResult) map[string]any {
	m := map[string]any{
		"id":         string(r.ID),
		"started_at": r.StartedAt,
		"ended_at":   r.EndedAt,
		"answer":     nil,
	}
	if r.Answer != nil {
		m["answer"] = answerToNative(r.Answer)
	}
	return m
}

func taskResultToNative(t TaskResult) map[string]any {
	results := make([]any, len(t.Results))
	for i, r := range t.Results {
		results[i] = stepResultToNative(r)
	}
	path := make([]any, len(t.Path))
	for i, id := range t.Path {
		path[i] = string(id)
	}
	return map[string]any{
		"task_id":    t.TaskID,
		"run_id":     t.RunID,
		"reason":     string(t.Reason),
		"results":    results,
		"path":       path,
		"current":    string(t.Current),
		"started_at": t.StartedAt,
		"ended_at":   t.EndedAt,
		"error":      t.Error,
		"version":    t.Version,
	}
}
