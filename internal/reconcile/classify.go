package reconcile

import (
	"sort"
	"strings"
)

// Bucket names used in output documents and metrics.
const (
	BucketEOAs                 = "eoas"
	BucketContracts            = "contracts"
	BucketPredecessorContracts = "predecessorContracts"
)

// Accounts partitions merged balances by wallet type.
type Accounts[V any] struct {
	EOAs                 map[string]V `json:"eoas"`
	Contracts            map[string]V `json:"contracts"`
	PredecessorContracts map[string]V `json:"predecessorContracts"`
}

// Len returns the number of accounts across all buckets.
func (a Accounts[V]) Len() int {
	return len(a.EOAs) + len(a.Contracts) + len(a.PredecessorContracts)
}

// Partition splits merged into buckets. An address in targetCandidates
// (matched case-insensitively) goes to Contracts or EOAs according to
// isContract; every other address is a predecessor contract.
func Partition[V any](merged map[string]V, targetCandidates []string, isContract map[string]bool) Accounts[V] {
	candidates := make(map[string]struct{}, len(targetCandidates))
	for _, a := range targetCandidates {
		candidates[strings.ToLower(a)] = struct{}{}
	}

	out := Accounts[V]{
		EOAs:                 make(map[string]V),
		Contracts:            make(map[string]V),
		PredecessorContracts: make(map[string]V),
	}
	for addr, v := range merged {
		if _, onTarget := candidates[strings.ToLower(addr)]; !onTarget {
			out.PredecessorContracts[addr] = v
			continue
		}
		if isContract[addr] {
			out.Contracts[addr] = v
		} else {
			out.EOAs[addr] = v
		}
	}
	return out
}

// TargetAddresses returns the sorted keys of merged that belong to targetCandidates.
func TargetAddresses[V any](merged map[string]V, targetCandidates []string) []string {
	candidates := make(map[string]struct{}, len(targetCandidates))
	for _, a := range targetCandidates {
		candidates[strings.ToLower(a)] = struct{}{}
	}
	var out []string
	for addr := range merged {
		if _, ok := candidates[strings.ToLower(addr)]; ok {
			out = append(out, addr)
		}
	}
	sort.Strings(out)
	return out
}
