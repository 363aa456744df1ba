package barn

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pinto-org/beanstalk-snapshot/internal/amount"
	"github.com/pinto-org/beanstalk-snapshot/internal/assets"
	"github.com/pinto-org/beanstalk-snapshot/internal/ledger"
	"github.com/pinto-org/beanstalk-snapshot/internal/reconcile"
	"github.com/pinto-org/beanstalk-snapshot/internal/stepcache"
)

const (
	Asset = "barn"

	// LayoutFile is the Beanstalk storage layout read from the layout dir.
	LayoutFile = "beanstalk-arb.json"

	fertilizerVar = "s.sys.fert.fertilizer"
	totalName     = "fertilizer"
)

var shapes = map[string]ledger.Shape{
	"L1FertilizerMigrated": {
		IDs:      [][]string{{"fertIds", "ids"}},
		Owner:    []string{"owner"},
		Receiver: []string{"receiver"},
	},
	"FertilizerMigrated": {
		Accounts: [][]string{{"account", "owner"}},
		IDs:      [][]string{{"fid", "id"}},
	},
	"TransferSingle": {
		Accounts: [][]string{{"from"}, {"to"}},
		IDs:      [][]string{{"id"}},
	},
	"TransferBatch": {
		Accounts: [][]string{{"from"}, {"to"}},
		IDs:      [][]string{{"ids"}},
	},
}

type Pipeline struct {
	env       *assets.Env
	beanstalk *ledger.Contract
	fert      *ledger.Contract
	decoder   *ledger.Decoder

	mu      sync.Mutex
	storage map[string]*big.Int
}

func New(env *assets.Env) (*Pipeline, error) {
	beanstalk, err := env.Contract("beanstalk", env.Contracts.Beanstalk, beanstalkABI)
	if err != nil {
		return nil, err
	}
	fert, err := env.Contract("fertilizer", env.Contracts.Fertilizer, fertilizerABI)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		env:       env,
		beanstalk: beanstalk,
		fert:      fert,
		decoder:   ledger.NewDecoder(shapes),
	}, nil
}

func (p *Pipeline) Definition() reconcile.Definition[assets.Holdings] {
	return reconcile.Definition[assets.Holdings]{
		Asset:              Asset,
		Discover:           p.discover,
		ResolveTarget:      p.resolveTarget,
		ResolvePredecessor: p.resolvePredecessor,
		Aggregate: func(merged map[string]assets.Holdings) map[string]*big.Int {
			return map[string]*big.Int{totalName: assets.Total(merged)}
		},
		Authoritative: p.authoritative,
		StorageChecks: p.storageChecks,
	}
}

func (p *Pipeline) migrations(ctx context.Context) ([]assets.Migration, error) {
	return stepcache.Once(ctx, p.env.Cache, reconcile.StepName(Asset, "fert-migrated-contracts"),
		func(ctx context.Context) ([]assets.Migration, error) {
			records, err := p.env.ScanRecords(ctx, p.beanstalk, p.decoder, "L1FertilizerMigrated")
			if err != nil {
				return nil, err
			}
			return assets.Migrations(records)
		})
}

func walletIDsStep() string {
	return reconcile.StepName(Asset, "arb-wallet-ids")
}

// discover collects every account that may hold fertilizer, with the ids
// it may hold.
func (p *Pipeline) discover(ctx context.Context) ([]string, error) {
	walletIDs, err := stepcache.Once(ctx, p.env.Cache, walletIDsStep(), func(ctx context.Context) (map[string][]amount.Amount, error) {
		migrations, err := p.migrations(ctx)
		if err != nil {
			return nil, err
		}
		migrated, err := p.env.ScanRecords(ctx, p.beanstalk, p.decoder, "FertilizerMigrated")
		if err != nil {
			return nil, err
		}
		transfers, err := p.env.ScanRecords(ctx, p.fert, p.decoder, "TransferSingle", "TransferBatch")
		if err != nil {
			return nil, err
		}
		return collectWalletIDs(migrations, append(migrated, transfers...))
	})
	if err != nil {
		return nil, err
	}
	return assets.SortedKeys(walletIDs), nil
}

func collectWalletIDs(migrations []assets.Migration, records []ledger.Record) (map[string][]amount.Amount, error) {
	sets := make(map[string]map[string]amount.Amount)
	wallet := func(account string) map[string]amount.Amount {
		s, ok := sets[account]
		if !ok {
			s = make(map[string]amount.Amount)
			sets[account] = s
		}
		return s
	}

	// Receivers are candidates even when their migration carried no ids.
	for _, m := range migrations {
		s := wallet(common.HexToAddress(m.Receiver).Hex())
		for _, id := range m.IDs {
			s[id.String()] = id
		}
	}
	for _, rec := range records {
		for _, account := range rec.Accounts {
			s := wallet(account.Hex())
			for _, id := range rec.IDs {
				a, err := amount.FromBig(id)
				if err != nil {
					return nil, fmt.Errorf("%s id: %w", rec.Event, err)
				}
				s[a.String()] = a
			}
		}
	}
	delete(sets, common.Address{}.Hex())

	out := make(map[string][]amount.Amount, len(sets))
	for account, s := range sets {
		ids := make([]amount.Amount, 0, len(s))
		for _, key := range assets.SortedKeys(s) {
			ids = append(ids, s[key])
		}
		out[account] = ids
	}
	return out, nil
}

func (p *Pipeline) resolveTarget(ctx context.Context, candidates []string) (map[string]assets.Holdings, error) {
	walletIDs, err := stepcache.Require[map[string][]amount.Amount](p.env.Cache, walletIDsStep())
	if err != nil {
		return nil, err
	}

	holdings := assets.NewCollector()
	err = p.env.ForEach(ctx, "barn-balances", candidates, func(ctx context.Context, account string) error {
		for _, id := range walletIDs[account] {
			bal, err := assets.CallAmount(ctx, p.fert, p.env.SnapshotBlock, "balanceOf", common.HexToAddress(account), id.Big())
			if err != nil {
				return err
			}
			if err := holdings.Put(account, id.String(), bal); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return holdings.Result(), nil
}

func (p *Pipeline) resolvePredecessor(ctx context.Context) (map[string]assets.Holdings, error) {
	migrations, err := p.migrations(ctx)
	if err != nil {
		return nil, err
	}
	unmigrated, err := assets.UnmigratedContracts(p.env.Cache, migrations)
	if err != nil {
		return nil, err
	}
	var fixture map[string]assets.Holdings
	if err := p.env.Cache.LoadFixtureJSON("fert", &fixture); err != nil {
		return nil, err
	}
	return assets.SelectHolders(fixture, unmigrated), nil
}

// readStorage reads sys.fert.fertilizer[id] for every id held by merged
// or seen during discovery. Zero entries are dropped.
func (p *Pipeline) readStorage(ctx context.Context, merged map[string]assets.Holdings) (map[string]*big.Int, error) {
	p.mu.Lock()
	cached := p.storage
	p.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	layout, err := ledger.LoadLayout(filepath.Join(p.env.LayoutDir, LayoutFile))
	if err != nil {
		return nil, err
	}
	root, err := layout.Var(fertilizerVar)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]struct{})
	for _, h := range merged {
		for id := range h {
			ids[id] = struct{}{}
		}
	}
	if walletIDs, err := stepcache.Require[map[string][]amount.Amount](p.env.Cache, walletIDsStep()); err == nil {
		for _, list := range walletIDs {
			for _, id := range list {
				ids[id.String()] = struct{}{}
			}
		}
	}

	var mu sync.Mutex
	out := make(map[string]*big.Int)
	err = p.env.ForEach(ctx, "barn-storage", assets.SortedKeys(ids), func(ctx context.Context, id string) error {
		key, ok := new(big.Int).SetString(id, 10)
		if !ok {
			return fmt.Errorf("bad fertilizer id %q", id)
		}
		loc, err := root.Key(key)
		if err != nil {
			return err
		}
		v, err := ledger.ReadUint(ctx, p.env.Provider, p.beanstalk.Address, loc, p.env.SnapshotBlock)
		if err != nil {
			return err
		}
		if v.Sign() == 0 {
			return nil
		}
		mu.Lock()
		out[id] = v
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.storage = out
	p.mu.Unlock()
	return out, nil
}

func (p *Pipeline) authoritative(ctx context.Context, merged map[string]assets.Holdings) (map[string]*big.Int, error) {
	storage, err := p.readStorage(ctx, merged)
	if err != nil {
		return nil, err
	}
	total := new(big.Int)
	for _, v := range storage {
		total.Add(total, v)
	}
	return map[string]*big.Int{totalName: total}, nil
}

func (p *Pipeline) storageChecks(ctx context.Context, merged map[string]assets.Holdings) ([]reconcile.StorageCheck, error) {
	storage, err := p.readStorage(ctx, merged)
	if err != nil {
		return nil, err
	}
	return []reconcile.StorageCheck{{
		Name:     fertilizerVar,
		Expected: storage,
		Computed: assets.SumByKey(merged),
	}}, nil
}
