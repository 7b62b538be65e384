package fingerprint

import (
	"fmt"
)

// MismatchError is returned by Compare when two fingerprints differ.
type MismatchError struct {
	Expected string
	Actual   string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("schema fingerprint mismatch - expected: %s, actual: %s",
		preview(e.Expected), preview(e.Actual))
}

// Compare compares two schema fingerprints and returns a *MismatchError if they don't match
func Compare(expected, actual *SchemaFingerprint) error {
	if expected.Hash == actual.Hash {
		return nil
	}
	return &MismatchError{Expected: expected.Hash, Actual: actual.Hash}
}

func preview(hash string) string {
	if len(hash) > 16 {
		return hash[:16]
	}
	return hash
}
