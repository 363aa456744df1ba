package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pinto-org/beanstalk-snapshot/internal/amount"
	"github.com/pinto-org/beanstalk-snapshot/internal/classifier"
	"github.com/pinto-org/beanstalk-snapshot/internal/metrics"
	"github.com/pinto-org/beanstalk-snapshot/internal/stepcache"
	"github.com/pinto-org/beanstalk-snapshot/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Stage names, in execution order.
const (
	StageDiscover      = "discover_candidates"
	StageTarget        = "resolve_target_balances"
	StagePredecessor   = "resolve_predecessor_balances"
	StageMerge         = "merge_disjoint"
	StageDerive        = "derive"
	StageClassify      = "classify"
	StageValidate      = "validate_aggregates"
	StageCrossValidate = "cross_validate_storage"
	StagePersist       = "persist"
)

// Definition holds the per-asset variation points of a run. V is the
// balance shape of one account.
type Definition[V any] struct {
	Asset string

	// Discover returns every target-ledger address that may hold a balance.
	Discover func(ctx context.Context) ([]string, error)
	// ResolveTarget returns the nonzero balances of candidates at the snapshot block.
	ResolveTarget func(ctx context.Context, candidates []string) (map[string]V, error)
	// ResolvePredecessor returns the balances of predecessor holders that never migrated.
	ResolvePredecessor func(ctx context.Context) (map[string]V, error)
	// Derive, if set, rewrites merged balances before classification.
	Derive func(ctx context.Context, merged map[string]V) (map[string]V, error)

	// Aggregate computes named totals over merged balances.
	Aggregate func(merged map[string]V) map[string]*big.Int
	// Authoritative reads the ledger's own figures for the same names.
	Authoritative func(ctx context.Context, merged map[string]V) (map[string]*big.Int, error)
	// Adjustments lists known corrections per total name.
	Adjustments map[string][]Adjustment
	// StorageChecks, if set, builds per-key comparisons against ledger storage.
	StorageChecks func(ctx context.Context, merged map[string]V) ([]StorageCheck, error)
}

func (d Definition[V]) validate() error {
	if d.Asset == "" {
		return fmt.Errorf("asset name is required")
	}
	if d.Discover == nil || d.ResolveTarget == nil || d.ResolvePredecessor == nil {
		return fmt.Errorf("%s: discover, target and predecessor resolvers are required", d.Asset)
	}
	if d.Aggregate == nil || d.Authoritative == nil {
		return fmt.Errorf("%s: aggregate and authoritative totals are required", d.Asset)
	}
	return nil
}

type Config struct {
	ChainID       uint64
	SnapshotBlock uint64
	OutputDir     string
}

// Runner executes asset definitions against shared cache and classifier state.
type Runner struct {
	cfg        Config
	cache      *stepcache.Cache
	classifier *classifier.Classifier
	checker    classifier.CodeChecker
	logger     *slog.Logger
}

func NewRunner(cfg Config, cache *stepcache.Cache, cls *classifier.Classifier, checker classifier.CodeChecker, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:        cfg,
		cache:      cache,
		classifier: cls,
		checker:    checker,
		logger:     logger.With("component", "reconcile"),
	}
}

// Cache exposes the step cache so asset definitions can memoize their own
// intermediate steps.
func (r *Runner) Cache() *stepcache.Cache {
	return r.cache
}

// StepName returns the cache name of an asset-scoped step.
func StepName(asset, step string) string {
	return asset + "-" + step
}

// Run executes every stage of def and persists the resulting document.
// Stage results that are expensive to recompute are cached, so a failed
// run resumes at the failing stage.
func Run[V any](ctx context.Context, r *Runner, def Definition[V]) (*Document[V], error) {
	if err := def.validate(); err != nil {
		return nil, err
	}
	asset := def.Asset
	logger := r.logger.With("asset", asset)

	ctx, span := tracing.Tracer("reconcile").Start(ctx, "reconcile.run",
		trace.WithAttributes(attribute.String("asset", asset)))
	defer span.End()

	var (
		candidates  []string
		target      map[string]V
		predecessor map[string]V
		merged      map[string]V
		accounts    Accounts[V]
		totals      map[string]*big.Int
		mismatches  []Mismatch
	)

	err := r.stage(ctx, asset, StageDiscover, func(ctx context.Context) error {
		var err error
		candidates, err = stepcache.Once(ctx, r.cache, StepName(asset, "arb-wallets"), func(ctx context.Context) ([]string, error) {
			found, err := def.Discover(ctx)
			if err != nil {
				return nil, err
			}
			return NormalizeCandidates(found), nil
		})
		logger.Info("candidates discovered", "count", len(candidates))
		return err
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(ctx, asset, StageTarget, func(ctx context.Context) error {
		var err error
		target, err = stepcache.Once(ctx, r.cache, StepName(asset, "arb-balances"), func(ctx context.Context) (map[string]V, error) {
			return def.ResolveTarget(ctx, candidates)
		})
		logger.Info("target balances resolved", "holders", len(target))
		return err
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(ctx, asset, StagePredecessor, func(ctx context.Context) error {
		var err error
		predecessor, err = stepcache.Once(ctx, r.cache, StepName(asset, "eth-balances"), def.ResolvePredecessor)
		logger.Info("predecessor balances resolved", "holders", len(predecessor))
		return err
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(ctx, asset, StageMerge, func(ctx context.Context) error {
		var err error
		merged, err = MergeDisjoint(asset, target, predecessor)
		return err
	})
	if err != nil {
		return nil, err
	}

	if def.Derive != nil {
		err = r.stage(ctx, asset, StageDerive, func(ctx context.Context) error {
			var err error
			merged, err = def.Derive(ctx, merged)
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	err = r.stage(ctx, asset, StageClassify, func(ctx context.Context) error {
		onTarget := TargetAddresses(merged, candidates)
		isContract, err := r.classifier.Classify(ctx, r.checker, r.cfg.ChainID, onTarget, r.cfg.SnapshotBlock)
		if err != nil {
			return err
		}
		accounts = Partition(merged, candidates, isContract)
		metrics.ReconcileAccounts.WithLabelValues(asset, BucketEOAs).Set(float64(len(accounts.EOAs)))
		metrics.ReconcileAccounts.WithLabelValues(asset, BucketContracts).Set(float64(len(accounts.Contracts)))
		metrics.ReconcileAccounts.WithLabelValues(asset, BucketPredecessorContracts).Set(float64(len(accounts.PredecessorContracts)))
		logger.Info("accounts classified",
			"eoas", len(accounts.EOAs),
			"contracts", len(accounts.Contracts),
			"predecessor_contracts", len(accounts.PredecessorContracts),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = r.stage(ctx, asset, StageValidate, func(ctx context.Context) error {
		totals = def.Aggregate(merged)
		authoritative, err := def.Authoritative(ctx, merged)
		if err != nil {
			return err
		}
		mismatches = append(mismatches, ValidateAggregates(logger, asset, buildChecks(logger, totals, authoritative, def.Adjustments))...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if def.StorageChecks != nil {
		err = r.stage(ctx, asset, StageCrossValidate, func(ctx context.Context) error {
			checks, err := def.StorageChecks(ctx, merged)
			if err != nil {
				return err
			}
			for _, sc := range checks {
				mismatches = append(mismatches, CrossValidateStorage(logger, asset, sc)...)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	doc := &Document[V]{
		Asset:         asset,
		SnapshotBlock: r.cfg.SnapshotBlock,
		Accounts:      accounts,
		Totals:        make(map[string]amount.Amount, len(totals)),
		Mismatches:    mismatches,
	}
	err = r.stage(ctx, asset, StagePersist, func(ctx context.Context) error {
		for name, v := range totals {
			a, err := amount.FromBig(v)
			if err != nil {
				return fmt.Errorf("total %s: %w", name, err)
			}
			doc.Totals[name] = a
		}
		path, err := Persist(r.cfg.OutputDir, doc)
		if err != nil {
			return err
		}
		logger.Info("snapshot written", "path", path, "accounts", accounts.Len(), "mismatches", len(mismatches))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *Runner) stage(ctx context.Context, asset, name string, fn func(ctx context.Context) error) error {
	ctx, span := tracing.Tracer("reconcile").Start(ctx, "reconcile."+name,
		trace.WithAttributes(attribute.String("asset", asset)))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	metrics.ReconcileStageDuration.WithLabelValues(asset, name).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error("stage failed", "asset", asset, "stage", name, "error", err)
		return fmt.Errorf("%s %s: %w", asset, name, err)
	}
	r.logger.Debug("stage complete", "asset", asset, "stage", name, "duration", time.Since(start).String())
	return nil
}

// buildChecks pairs each authoritative total with the computed total of the
// same name.
func buildChecks(logger *slog.Logger, computed, authoritative map[string]*big.Int, adjustments map[string][]Adjustment) []Check {
	names := make([]string, 0, len(authoritative))
	for name := range authoritative {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make([]Check, 0, len(names))
	for _, name := range names {
		c, ok := computed[name]
		if !ok {
			logger.Warn("no computed total for authoritative figure", "check", name)
		}
		checks = append(checks, Check{
			Name:        name,
			Expected:    authoritative[name],
			Computed:    c,
			Adjustments: adjustments[name],
		})
	}
	return checks
}

// NormalizeCandidates drops the null address and case-insensitive
// duplicates, returning checksummed addresses in sorted order.
func NormalizeCandidates(addrs []string) []string {
	null := strings.ToLower(common.Address{}.Hex())
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		lower := strings.ToLower(strings.TrimSpace(a))
		if lower == "" || lower == null {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		if common.IsHexAddress(lower) {
			out = append(out, common.HexToAddress(lower).Hex())
		} else {
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out
}
