package reconcile

import (
	"log/slog"
	"math/big"
	"sort"

	"github.com/pinto-org/beanstalk-snapshot/internal/amount"
	"github.com/pinto-org/beanstalk-snapshot/internal/metrics"
)

// Mismatch kinds.
const (
	KindAggregate = "aggregate"
	KindStorage   = "storage"
)

// Adjustment is a known, documented correction to an authoritative total.
// Its Amount is subtracted from the authoritative value before comparing.
type Adjustment struct {
	Name   string
	Reason string
	Amount *big.Int
}

// Check compares a computed aggregate with the ledger's own figure.
type Check struct {
	Name        string
	Expected    *big.Int
	Computed    *big.Int
	Adjustments []Adjustment
}

// Mismatch is a failed check. Validation never aborts a run; mismatches are
// logged, counted and written to the output document.
type Mismatch struct {
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Key      string `json:"key,omitempty"`
	Expected string `json:"expected"`
	Computed string `json:"computed"`
	Deficit  string `json:"deficit"`
	Missing  string `json:"missing,omitempty"`
}

// ValidateAggregates runs every check and returns those that disagree.
// The deficit is (expected - adjustments) - computed.
func ValidateAggregates(logger *slog.Logger, asset string, checks []Check) []Mismatch {
	var out []Mismatch
	for _, c := range checks {
		expected := new(big.Int).Set(orZero(c.Expected))
		for _, adj := range c.Adjustments {
			expected.Sub(expected, orZero(adj.Amount))
		}
		computed := orZero(c.Computed)
		deficit := amount.Deficit(expected, computed)

		if deficit.Sign() == 0 {
			logger.Info("aggregate check passed",
				"asset", asset, "check", c.Name, "total", computed.String(), "adjustments", len(c.Adjustments))
			continue
		}

		metrics.ReconcileMismatchesTotal.WithLabelValues(asset, KindAggregate).Inc()
		logger.Warn("aggregate check mismatch",
			"asset", asset,
			"check", c.Name,
			"expected", expected.String(),
			"computed", computed.String(),
			"deficit", deficit.String(),
		)
		out = append(out, Mismatch{
			Kind:     KindAggregate,
			Name:     c.Name,
			Expected: expected.String(),
			Computed: computed.String(),
			Deficit:  deficit.String(),
		})
	}
	return out
}

// StorageCheck compares per-key totals read from ledger storage with the
// totals computed from merged balances.
type StorageCheck struct {
	Name     string
	Expected map[string]*big.Int
	Computed map[string]*big.Int
}

// CrossValidateStorage reports keys missing on either side and keys whose
// values differ, in key order.
func CrossValidateStorage(logger *slog.Logger, asset string, sc StorageCheck) []Mismatch {
	keys := make(map[string]struct{}, len(sc.Expected)+len(sc.Computed))
	for k := range sc.Expected {
		keys[k] = struct{}{}
	}
	for k := range sc.Computed {
		keys[k] = struct{}{}
	}
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var out []Mismatch
	for _, k := range sorted {
		expected, inStorage := sc.Expected[k]
		computed, inComputed := sc.Computed[k]

		m := Mismatch{Kind: KindStorage, Name: sc.Name, Key: k}
		switch {
		case !inStorage:
			m.Missing = "storage"
		case !inComputed:
			m.Missing = "computed"
		}
		deficit := amount.Deficit(orZero(expected), orZero(computed))
		if m.Missing == "" && deficit.Sign() == 0 {
			continue
		}
		m.Expected = orZero(expected).String()
		m.Computed = orZero(computed).String()
		m.Deficit = deficit.String()

		metrics.ReconcileMismatchesTotal.WithLabelValues(asset, KindStorage).Inc()
		logger.Warn("storage cross-check mismatch",
			"asset", asset,
			"check", sc.Name,
			"key", k,
			"missing", m.Missing,
			"expected", m.Expected,
			"computed", m.Computed,
			"deficit", m.Deficit,
		)
		out = append(out, m)
	}

	if len(sc.Expected) != len(sc.Computed) {
		logger.Warn("storage cross-check key count differs",
			"asset", asset, "check", sc.Name, "storage_keys", len(sc.Expected), "computed_keys", len(sc.Computed))
	}
	return out
}

func orZero(b *big.Int) *big.Int {
	if b == nil {
		return new(big.Int)
	}
	return b
}
