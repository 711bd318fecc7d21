package merge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ContentHash returns the sha256 hex digest of text. Proposals record this
// for each file at approval time so later application can detect drift.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// StaleError reports that live content no longer matches the hash a
// proposal was approved against. It is distinct from a merge Conflict:
// the approval itself is no longer meaningful.
type StaleError struct {
	Path         string
	ExpectedHash string
	ActualHash   string
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("stale content for %s: expected hash %s, got %s", e.Path, e.ExpectedHash, e.ActualHash)
}

// CheckFresh compares live content against the recorded pre-edit hash.
func CheckFresh(path, liveText, expectedHash string) error {
	if actual := ContentHash(liveText); actual != expectedHash {
		return &StaleError{Path: path, ExpectedHash: expectedHash, ActualHash: actual}
	}
	return nil
}
