package field

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pinto-org/beanstalk-snapshot/internal/assets"
	"github.com/pinto-org/beanstalk-snapshot/internal/ledger"
	"github.com/pinto-org/beanstalk-snapshot/internal/reconcile"
	"github.com/pinto-org/beanstalk-snapshot/internal/stepcache"
)

const (
	Asset = "field"

	// FieldID is the only field that existed at the snapshot block.
	FieldID int64 = 0

	totalName = "pods"
)

var shapes = map[string]ledger.Shape{
	"L1PlotsMigrated": {
		IDs:      [][]string{{"index", "plotIndexes"}},
		Owner:    []string{"owner"},
		Receiver: []string{"receiver"},
	},
	"MigratedPlot": {Accounts: [][]string{{"account"}}},
	"PlotTransfer": {Accounts: [][]string{{"from"}, {"to"}}},
	"Sow":          {Accounts: [][]string{{"account"}}},
}

type Pipeline struct {
	env       *assets.Env
	beanstalk *ledger.Contract
	decoder   *ledger.Decoder
}

func New(env *assets.Env) (*Pipeline, error) {
	beanstalk, err := env.Contract("beanstalk", env.Contracts.Beanstalk, beanstalkABI)
	if err != nil {
		return nil, err
	}
	return &Pipeline{env: env, beanstalk: beanstalk, decoder: ledger.NewDecoder(shapes)}, nil
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
	}
}

func (p *Pipeline) migrations(ctx context.Context) ([]assets.Migration, error) {
	return stepcache.Once(ctx, p.env.Cache, reconcile.StepName(Asset, "plots-migrated-contracts"),
		func(ctx context.Context) ([]assets.Migration, error) {
			records, err := p.env.ScanRecords(ctx, p.beanstalk, p.decoder, "L1PlotsMigrated")
			if err != nil {
				return nil, err
			}
			return assets.Migrations(records)
		})
}

// discover returns every sower, plot transfer party, migrated plot holder
// and migration receiver.
func (p *Pipeline) discover(ctx context.Context) ([]string, error) {
	migrations, err := p.migrations(ctx)
	if err != nil {
		return nil, err
	}
	records, err := p.env.ScanRecords(ctx, p.beanstalk, p.decoder, "MigratedPlot", "PlotTransfer", "Sow")
	if err != nil {
		return nil, err
	}

	var out []string
	for _, m := range migrations {
		out = append(out, m.Receiver)
	}
	for _, rec := range records {
		for _, a := range rec.Accounts {
			out = append(out, a.Hex())
		}
	}
	return out, nil
}

func (p *Pipeline) resolveTarget(ctx context.Context, candidates []string) (map[string]assets.Holdings, error) {
	fieldID := big.NewInt(FieldID)
	holdings := assets.NewCollector()
	err := p.env.ForEach(ctx, "field-plots", candidates, func(ctx context.Context, account string) error {
		addr := common.HexToAddress(account)
		values, err := p.beanstalk.Call(ctx, p.env.SnapshotBlock, "getPlotIndexesFromAccount", addr, fieldID)
		if err != nil {
			return err
		}
		if len(values) != 1 {
			return fmt.Errorf("getPlotIndexesFromAccount: expected 1 output, got %d", len(values))
		}
		indexes, ok := values[0].([]*big.Int)
		if !ok {
			return fmt.Errorf("getPlotIndexesFromAccount: unexpected output type %T", values[0])
		}
		for _, index := range indexes {
			pods, err := assets.CallAmount(ctx, p.beanstalk, p.env.SnapshotBlock, "plot", addr, fieldID, index)
			if err != nil {
				return err
			}
			if err := holdings.Put(account, index.String(), pods); err != nil {
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
	if err := p.env.Cache.LoadFixtureJSON("pods", &fixture); err != nil {
		return nil, err
	}
	return assets.SelectHolders(fixture, unmigrated), nil
}

func (p *Pipeline) authoritative(ctx context.Context, _ map[string]assets.Holdings) (map[string]*big.Int, error) {
	total, err := assets.CallAmount(ctx, p.beanstalk, p.env.SnapshotBlock, "totalUnharvestable", big.NewInt(FieldID))
	if err != nil {
		return nil, err
	}
	return map[string]*big.Int{totalName: total.Big()}, nil
}
