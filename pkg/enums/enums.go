// Package enums holds the closed string sets persisted by the ledger.
package enums

import (
	"fmt"
	"slices"
)

func known[T ~string](v T, set []T) bool {
	return slices.Contains(set, v)
}

func parse[T ~string](kind, raw, normalized string, set []T) (T, error) {
	if v := T(normalized); known(v, set) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}
