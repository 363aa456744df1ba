package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pinto-org/beanstalk-snapshot/internal/metrics"
	"github.com/pinto-org/beanstalk-snapshot/internal/scheduler"
	"github.com/pinto-org/beanstalk-snapshot/internal/store/jsonfile"
)

const DefaultConcurrency = 50

// CodeChecker reports whether an address has code at a block.
type CodeChecker interface {
	HasCode(ctx context.Context, addr common.Address, block uint64) (bool, error)
}

type Classifier struct {
	dir         string
	sched       *scheduler.Scheduler
	concurrency int
	logger      *slog.Logger

	// Serializes read-extend-write of the map files.
	mu sync.Mutex
}

func New(dir string, sched *scheduler.Scheduler, concurrency int, logger *slog.Logger) *Classifier {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		dir:         dir,
		sched:       sched,
		concurrency: concurrency,
		logger:      logger.With("component", "classifier"),
	}
}

// Path returns the map file for (chainID, block).
func (c *Classifier) Path(chainID, block uint64) string {
	return filepath.Join(c.dir, "contracts-"+strconv.FormatUint(chainID, 10)+"-"+strconv.FormatUint(block, 10)+".json")
}

// Classify returns, for each requested address, whether it has code on
// chainID at block. Addresses are used as map keys exactly as given.
// Addresses whose check fails are reported as false and left out of the
// persisted map so a later call checks them again.
func (c *Classifier) Classify(ctx context.Context, p CodeChecker, chainID uint64, addresses []string, block uint64) (map[string]bool, error) {
	for _, a := range addresses {
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("classify: invalid address %q", a)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.Path(chainID, block)
	known := make(map[string]bool)
	exists, err := jsonfile.Exists(path)
	if err != nil {
		return nil, err
	}
	if exists {
		if err := jsonfile.Read(path, &known); err != nil {
			return nil, fmt.Errorf("classify: %w", err)
		}
	}

	var missing []string
	seen := make(map[string]struct{})
	for _, a := range addresses {
		if _, ok := known[a]; ok {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		missing = append(missing, a)
	}

	chain := strconv.FormatUint(chainID, 10)
	failed := make(map[string]bool)
	if len(missing) > 0 {
		c.logger.Info("checking addresses for code", "chain_id", chainID, "block", block, "count", len(missing), "known", len(known))

		var resMu sync.Mutex
		queueID := scheduler.NewQueueID("classify")
		for _, a := range missing {
			a := a
			err := c.sched.Submit(ctx, queueID, c.concurrency, func(ctx context.Context) error {
				isContract, err := p.HasCode(ctx, common.HexToAddress(a), block)
				resMu.Lock()
				defer resMu.Unlock()
				if err != nil {
					metrics.ClassifierChecksTotal.WithLabelValues(chain, "error").Inc()
					c.logger.Warn("code check failed, treating as not a contract",
						"address", a, "chain_id", chainID, "block", block, "error", err)
					failed[a] = true
					return nil
				}
				if isContract {
					metrics.ClassifierChecksTotal.WithLabelValues(chain, "contract").Inc()
				} else {
					metrics.ClassifierChecksTotal.WithLabelValues(chain, "eoa").Inc()
				}
				known[a] = isContract
				return nil
			})
			if err != nil {
				_ = c.sched.Settle(context.WithoutCancel(ctx), queueID)
				return nil, fmt.Errorf("classify: %w", err)
			}
		}
		if err := c.sched.Drain(ctx, queueID); err != nil {
			return nil, fmt.Errorf("classify: %w", err)
		}

		if _, err := jsonfile.Write(path, known); err != nil {
			return nil, fmt.Errorf("classify: %w", err)
		}
		if len(failed) > 0 {
			c.logger.Warn("some code checks failed and were not persisted", "chain_id", chainID, "failed", len(failed))
		}
	}

	out := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		out[a] = known[a]
	}
	return out, nil
}
