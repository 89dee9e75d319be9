// ABOUTME: Reversible encoding between canonical and wire-safe function names
// ABOUTME: Canonical names look like "search.ts"; wire names must match the model API's charset

package turn

import "strings"

// Canonical function names have the form "<function>.<service suffix>", e.g.
// "search.ts" or "forecast.py". The completion API only accepts names matching
// [a-zA-Z0-9_-]+, so the dot is swapped for an underscore on the wire. The
// function part may itself contain underscores; the suffix may not, which is
// what keeps the mapping reversible.

// EncodeFunctionName converts a canonical function name to its wire form.
func EncodeFunctionName(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return name
	}
	return name[:idx] + "_" + name[idx+1:]
}

// DecodeFunctionName converts a wire function name back to canonical form.
// A name with no underscore is returned unchanged.
func DecodeFunctionName(encoded string) string {
	idx := strings.LastIndex(encoded, "_")
	if idx < 0 {
		return encoded
	}
	return encoded[:idx] + "." + encoded[idx+1:]
}

// BareFunctionName strips the service suffix from a canonical name, yielding
// the route segment used when calling the owning service.
func BareFunctionName(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return name
	}
	return name[:idx]
}
