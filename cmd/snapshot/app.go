package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/pinto-org/beanstalk-snapshot/internal/assets"
	"github.com/pinto-org/beanstalk-snapshot/internal/assets/barn"
	"github.com/pinto-org/beanstalk-snapshot/internal/assets/field"
	"github.com/pinto-org/beanstalk-snapshot/internal/assets/silo"
	"github.com/pinto-org/beanstalk-snapshot/internal/chain/evm/rpc"
	"github.com/pinto-org/beanstalk-snapshot/internal/chain/ratelimit"
	"github.com/pinto-org/beanstalk-snapshot/internal/classifier"
	"github.com/pinto-org/beanstalk-snapshot/internal/config"
	"github.com/pinto-org/beanstalk-snapshot/internal/ledger"
	"github.com/pinto-org/beanstalk-snapshot/internal/reconcile"
	"github.com/pinto-org/beanstalk-snapshot/internal/retry"
	"github.com/pinto-org/beanstalk-snapshot/internal/scanner"
	"github.com/pinto-org/beanstalk-snapshot/internal/scheduler"
	"github.com/pinto-org/beanstalk-snapshot/internal/stepcache"
	"golang.org/x/sync/errgroup"
)

type definitionFunc func(env *assets.Env) (reconcile.Definition[assets.Holdings], error)

var pipelines = map[string]definitionFunc{
	barn.Asset: func(env *assets.Env) (reconcile.Definition[assets.Holdings], error) {
		p, err := barn.New(env)
		if err != nil {
			return reconcile.Definition[assets.Holdings]{}, err
		}
		return p.Definition(), nil
	},
	field.Asset: func(env *assets.Env) (reconcile.Definition[assets.Holdings], error) {
		p, err := field.New(env)
		if err != nil {
			return reconcile.Definition[assets.Holdings]{}, err
		}
		return p.Definition(), nil
	},
	silo.Asset: func(env *assets.Env) (reconcile.Definition[assets.Holdings], error) {
		p, err := silo.New(env)
		if err != nil {
			return reconcile.Definition[assets.Holdings]{}, err
		}
		return p.Definition(), nil
	},
}

func assetNames() []string {
	names := make([]string, 0, len(pipelines))
	for name := range pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// resolveAssets expands "all" and rejects unknown or repeated names.
func resolveAssets(args []string) ([]string, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("no asset given, expected one of %s or all", strings.Join(assetNames(), ", "))
	}
	seen := make(map[string]struct{}, len(args))
	out := make([]string, 0, len(args))
	for _, arg := range args {
		name := strings.ToLower(strings.TrimSpace(arg))
		if name == "all" {
			return assetNames(), nil
		}
		if _, ok := pipelines[name]; !ok {
			return nil, fmt.Errorf("unknown asset %q, expected one of %s or all", arg, strings.Join(assetNames(), ", "))
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out, nil
}

// app holds the shared collaborators of one process.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	sched      *scheduler.Scheduler
	cache      *stepcache.Cache
	classifier *classifier.Classifier
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	sched := scheduler.New(logger)
	return &app{
		cfg:        cfg,
		logger:     logger,
		sched:      sched,
		cache:      stepcache.New(cfg.Paths.CacheDir, cfg.Paths.FixtureDir, cfg.Blocks.ReseedEth, logger),
		classifier: classifier.New(cfg.Paths.CacheDir, sched, cfg.Workers.ClassifyConcurrency, logger),
	}
}

// provider builds a rate limited, retrying JSON-RPC ledger provider. Every
// queue that reads through it shares its limiter.
func (a *app) provider(name, url string) *ledger.RPCProvider {
	client := rpc.NewClient(rpc.ClientConfig{
		RPCURL:   url,
		Provider: name,
		Timeout:  a.cfg.RPC.Timeout,
		Limiter:  ratelimit.NewLimiter(a.cfg.RPC.RPS, a.cfg.RPC.Burst, name),
		Retry:    retry.Policy{MaxAttempts: a.cfg.RPC.RetryAttempts},
	}, a.logger)
	return ledger.NewRPCProvider(client)
}

func (a *app) env(p ledger.Provider) *assets.Env {
	return &assets.Env{
		Provider:  p,
		Contracts: assets.ArbContracts,
		Scanner:   scanner.New(a.sched, a.cfg.Scan.Concurrency, a.logger),
		Scheduler: a.sched,
		Cache:     a.cache,
		ScanRange: scanner.Range{
			From:   a.cfg.Blocks.ReseedArb,
			To:     a.cfg.Blocks.Snapshot,
			Window: a.cfg.Scan.WindowSize,
		},
		SnapshotBlock:      a.cfg.Blocks.Snapshot,
		BalanceConcurrency: a.cfg.Workers.BalanceConcurrency,
		LayoutDir:          a.cfg.Paths.LayoutDir,
		Logger:             a.logger,
	}
}

// runAssets reconciles every named asset concurrently against the target
// ledger. The first failure cancels the others; completed steps stay cached.
func (a *app) runAssets(ctx context.Context, names []string) error {
	p := a.provider("arbitrum", a.cfg.Chain.ArbRPCURL)
	if err := a.checkHead(ctx, p, a.cfg.Blocks.Snapshot); err != nil {
		return err
	}
	env := a.env(p)
	runner := reconcile.NewRunner(reconcile.Config{
		ChainID:       a.cfg.Chain.ArbChainID,
		SnapshotBlock: a.cfg.Blocks.Snapshot,
		OutputDir:     a.cfg.Paths.OutputDir,
	}, a.cache, a.classifier, p, a.logger)

	defs := make([]reconcile.Definition[assets.Holdings], 0, len(names))
	for _, name := range names {
		def, err := pipelines[name](env)
		if err != nil {
			return fmt.Errorf("build %s pipeline: %w", name, err)
		}
		defs = append(defs, def)
	}

	g, gCtx := errgroup.WithContext(ctx)
	for _, def := range defs {
		def := def
		g.Go(func() error {
			doc, err := reconcile.Run(gCtx, runner, def)
			if err != nil {
				return err
			}
			a.logger.Info("asset reconciled",
				"asset", doc.Asset,
				"eoas", len(doc.Accounts.EOAs),
				"contracts", len(doc.Accounts.Contracts),
				"predecessor_contracts", len(doc.Accounts.PredecessorContracts),
				"mismatches", len(doc.Mismatches),
				"output", reconcile.OutputPath(a.cfg.Paths.OutputDir, doc.Asset),
			)
			return nil
		})
	}
	return g.Wait()
}

// checkHead fails when block has not been produced by the provider yet;
// every read is pinned to it.
func (a *app) checkHead(ctx context.Context, p *ledger.RPCProvider, block uint64) error {
	head, err := p.Head(ctx)
	if err != nil {
		return fmt.Errorf("%s head: %w", p.Name(), err)
	}
	if head < block {
		return fmt.Errorf("block %d is ahead of %s head %d", block, p.Name(), head)
	}
	a.logger.Info("provider head checked", "provider", p.Name(), "head", head, "block", block)
	return nil
}

// ledgerTarget selects the provider, chain id and block used to classify
// addresses on one ledger.
type ledgerTarget struct {
	name    string
	url     string
	chainID uint64
	block   uint64
}

func (a *app) ledgerTarget(name string) (ledgerTarget, error) {
	switch name {
	case "arb", "arbitrum":
		return ledgerTarget{name: "arbitrum", url: a.cfg.Chain.ArbRPCURL, chainID: a.cfg.Chain.ArbChainID, block: a.cfg.Blocks.Snapshot}, nil
	case "eth", "ethereum":
		if a.cfg.Chain.EthRPCURL == "" {
			return ledgerTarget{}, fmt.Errorf("ETH_RPC_URL is required to classify on ethereum")
		}
		return ledgerTarget{name: "ethereum", url: a.cfg.Chain.EthRPCURL, chainID: assets.EthereumChainID, block: a.cfg.Blocks.ReseedEth}, nil
	default:
		return ledgerTarget{}, fmt.Errorf("unknown ledger %q, expected arb or eth", name)
	}
}

func (a *app) classify(ctx context.Context, ledgerName string, addresses []string) (map[string]bool, error) {
	t, err := a.ledgerTarget(ledgerName)
	if err != nil {
		return nil, err
	}
	p := a.provider(t.name, t.url)
	if err := a.checkHead(ctx, p, t.block); err != nil {
		return nil, err
	}
	return a.classifier.Classify(ctx, p, t.chainID, addresses, t.block)
}
