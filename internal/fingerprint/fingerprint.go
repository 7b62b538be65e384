package fingerprint

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/pgcompose/pgcompose/ir"
)

// SchemaFingerprint represents a fingerprint of a catalog's structure
type SchemaFingerprint struct {
	Hash string `json:"hash"` // SHA256 of the normalized definitions
}

type entry struct {
	Name       ir.QualifiedName `json:"name"`
	Kind       ir.ObjectKind    `json:"kind"`
	Definition string           `json:"definition"`
}

// ComputeFingerprint hashes every object's kind and normalized definition in
// name order. Declaration order does not contribute, so two catalogs with an
// empty diff always share a fingerprint.
func ComputeFingerprint(cat *ir.Catalog) (*SchemaFingerprint, error) {
	objs := cat.Objects()
	entries := make([]entry, 0, len(objs))
	for _, obj := range objs {
		entries = append(entries, entry{Name: obj.Name(), Kind: obj.Kind(), Definition: obj.Definition()})
	}
	slices.SortFunc(entries, func(a, b entry) int { return a.Name.Compare(b.Name) })

	hash, err := hashObject(entries)
	if err != nil {
		return nil, fmt.Errorf("failed to compute schema hash: %w", err)
	}

	return &SchemaFingerprint{
		Hash: hash,
	}, nil
}

// hashObject computes a SHA256 hash of any object
func hashObject(obj any) (string, error) {
	data, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash), nil
}

// String returns a human-readable representation of the fingerprint
func (f *SchemaFingerprint) String() string {
	if len(f.Hash) >= 8 {
		return fmt.Sprintf("Schema fingerprint: %s", f.Hash[:8])
	}
	return fmt.Sprintf("Schema fingerprint: %s", f.Hash)
}
