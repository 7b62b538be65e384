package diff

import (
	"slices"

	"github.com/pgcompose/pgcompose/ir"
)

// FunctionDiff describes how a routine changed. CREATE OR REPLACE cannot
// change argument types, return type or parameter names, so those changes
// need the routine dropped and created again.
type FunctionDiff struct {
	SignatureChanged  bool
	ReturnsChanged    bool
	ParamNamesChanged bool
	BodyChanged       bool
	// AttributesChanged covers language, volatility, STRICT, SECURITY DEFINER
	// and parameter defaults.
	AttributesChanged bool
}

// Recreate reports whether the routine must be dropped before it is created.
func (f *FunctionDiff) Recreate() bool {
	return f.SignatureChanged || f.ReturnsChanged || f.ParamNamesChanged
}

func diffFunctions(oldFn, newFn *ir.Function) *FunctionDiff {
	return &FunctionDiff{
		SignatureChanged:  oldFn.ArgTypes() != newFn.ArgTypes(),
		ReturnsChanged:    oldFn.Returns != newFn.Returns || outputsChanged(oldFn, newFn),
		ParamNamesChanged: !slices.Equal(paramNames(oldFn), paramNames(newFn)),
		BodyChanged:       oldFn.NormalizedBody != newFn.NormalizedBody,
		AttributesChanged: oldFn.Language != newFn.Language ||
			oldFn.Volatility != newFn.Volatility ||
			oldFn.Strict != newFn.Strict ||
			oldFn.SecurityDefiner != newFn.SecurityDefiner ||
			oldFn.Signature() != newFn.Signature(),
	}
}

func paramNames(f *ir.Function) []string {
	names := make([]string, len(f.Params))
	for i, p := range f.Params {
		names[i] = p.Name
	}
	return names
}

// outputsChanged catches OUT parameter changes, which alter the result type
// without touching the RETURNS clause.
func outputsChanged(oldFn, newFn *ir.Function) bool {
	outputs := func(f *ir.Function) []string {
		var out []string
		for _, p := range f.Params {
			if p.Mode == "OUT" || p.Mode == "INOUT" || p.Mode == "TABLE" {
				out = append(out, p.Type)
			}
		}
		return out
	}
	return !slices.Equal(outputs(oldFn), outputs(newFn))
}
