package reconcile

import (
	"fmt"
	"path/filepath"

	"github.com/pinto-org/beanstalk-snapshot/internal/amount"
	"github.com/pinto-org/beanstalk-snapshot/internal/store/jsonfile"
)

// Document is the persisted result for one asset class.
type Document[V any] struct {
	Asset         string                   `json:"asset"`
	SnapshotBlock uint64                   `json:"snapshotBlock"`
	Accounts      Accounts[V]              `json:"accounts"`
	Totals        map[string]amount.Amount `json:"totals"`
	Mismatches    []Mismatch               `json:"mismatches"`
}

// OutputPath returns the document location for asset under dir.
func OutputPath(dir, asset string) string {
	return filepath.Join(dir, asset+".json")
}

// Persist writes doc to <dir>/<asset>.json.
func Persist[V any](dir string, doc *Document[V]) (string, error) {
	path := OutputPath(dir, doc.Asset)
	if doc.Mismatches == nil {
		doc.Mismatches = []Mismatch{}
	}
	if _, err := jsonfile.Write(path, doc); err != nil {
		return "", fmt.Errorf("persist %s: %w", doc.Asset, err)
	}
	return path, nil
}
