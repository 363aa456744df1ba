package reconcile

import (
	"fmt"
	"sort"
	"strings"
)

// OverlapError reports holders present in both ledgers. It is always fatal.
type OverlapError struct {
	Asset     string
	Addresses []string
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%s: %d address(es) present in both target and predecessor balances: %s",
		e.Asset, len(e.Addresses), strings.Join(e.Addresses, ", "))
}

// MergeDisjoint unions target and predecessor. Addresses are compared
// case-insensitively; any shared address yields an *OverlapError.
func MergeDisjoint[V any](asset string, target, predecessor map[string]V) (map[string]V, error) {
	lowered := make(map[string]struct{}, len(target))
	for addr := range target {
		lowered[strings.ToLower(addr)] = struct{}{}
	}

	var overlap []string
	for addr := range predecessor {
		if _, ok := lowered[strings.ToLower(addr)]; ok {
			overlap = append(overlap, addr)
		}
	}
	if len(overlap) > 0 {
		sort.Strings(overlap)
		return nil, &OverlapError{Asset: asset, Addresses: overlap}
	}

	merged := make(map[string]V, len(target)+len(predecessor))
	for addr, v := range target {
		merged[addr] = v
	}
	for addr, v := range predecessor {
		merged[addr] = v
	}
	return merged, nil
}
