package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests.
// Version suffix enables future algorithm migration.
const (
	DomainTaskResult = "stepnav/task-result/v1"
	DomainStepResult = "stepnav/step-result/v1"
	DomainPath       = "stepnav/path/v1"
)

// hashWithDomain computes SHA-256 with domain separation:
// SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// TaskResultDigest computes the content digest of a snapshot.
// Two snapshots with the same digest restore to equivalent runs.
func TaskResultDigest(t TaskResult) (string, error) {
	canonical, err := MarshalCanonical(t)
	if err != nil {
		return "", fmt.Errorf("TaskResultDigest: %w", err)
	}
	return hashWithDomain(DomainTaskResult, canonical), nil
}

// StepResultDigest computes the content digest of a single step result.
func StepResultDigest(r StepResult) (string, error) {
	canonical, err := MarshalCanonical(r)
	if err != nil {
		return "", fmt.Errorf("StepResultDigest: %w", err)
	}
	return hashWithDomain(DomainStepResult, canonical), nil
}

// PathDigest computes a digest over a sequence of step identifiers only.
// Used to compare navigation paths independent of answers and timestamps.
func PathDigest(path []StepID) string {
	items := make([]any, len(path))
	for i, id := range path {
		items[i] = string(id)
	}
	// []any of strings cannot fail to marshal.
	canonical, _ := MarshalCanonical(items)
	return hashWithDomain(DomainPath, canonical)
}

// MustTaskResultDigest is like TaskResultDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTaskResultDigest(t TaskResult) string {
	d, err := TaskResultDigest(t)
	if err != nil {
		panic(err)
	}
	return d
}
