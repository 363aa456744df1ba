package silo

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pinto-org/beanstalk-snapshot/internal/assets"
	"github.com/pinto-org/beanstalk-snapshot/internal/ledger"
	"github.com/pinto-org/beanstalk-snapshot/internal/reconcile"
	"github.com/pinto-org/beanstalk-snapshot/internal/stepcache"
)

const Asset = "silo"

// Holding components.
const (
	Circulating = "circulating"
	Internal    = "internal"
	Unmigrated  = "unmigrated"
)

var shapes = map[string]ledger.Shape{
	"L1DepositsMigrated":         {Owner: []string{"owner"}, Receiver: []string{"receiver"}},
	"L1InternalBalancesMigrated": {Owner: []string{"owner"}, Receiver: []string{"receiver"}},
	"Transfer":                   {Accounts: [][]string{{"from"}, {"to"}}},
}

type token struct {
	key      string
	fixture  string
	contract *ledger.Contract
}

// Key returns the holdings key of component for t.
func (t token) Key(component string) string {
	return t.key + "." + component
}

type Pipeline struct {
	env       *assets.Env
	beanstalk *ledger.Contract
	tokens    []token
	decoder   *ledger.Decoder
}

func New(env *assets.Env) (*Pipeline, error) {
	beanstalk, err := env.Contract("beanstalk", env.Contracts.Beanstalk, beanstalkABI)
	if err != nil {
		return nil, err
	}
	bean, err := env.Contract("unripe-bean", env.Contracts.UnripeBean, erc20ABI)
	if err != nil {
		return nil, err
	}
	lp, err := env.Contract("unripe-lp", env.Contracts.UnripeLP, erc20ABI)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		env:       env,
		beanstalk: beanstalk,
		tokens: []token{
			{key: "bean", fixture: "unripe-bean", contract: bean},
			{key: "lp", fixture: "unripe-lp", contract: lp},
		},
		decoder: ledger.NewDecoder(shapes),
	}, nil
}

func (p *Pipeline) Definition() reconcile.Definition[assets.Holdings] {
	return reconcile.Definition[assets.Holdings]{
		Asset:              Asset,
		Discover:           p.discover,
		ResolveTarget:      p.resolveTarget,
		ResolvePredecessor: p.resolvePredecessor,
		Aggregate:          p.aggregate,
		Authoritative:      p.authoritative,
	}
}

func (p *Pipeline) migrations(ctx context.Context) ([]assets.Migration, error) {
	return stepcache.Once(ctx, p.env.Cache, reconcile.StepName(Asset, "migrated-contracts"),
		func(ctx context.Context) ([]assets.Migration, error) {
			records, err := p.env.ScanRecords(ctx, p.beanstalk, p.decoder, "L1DepositsMigrated", "L1InternalBalancesMigrated")
			if err != nil {
				return nil, err
			}
			return assets.Migrations(records)
		})
}

// discover returns every unripe transfer party and migration receiver.
// Beanstalk itself is left out: its token balance is custody of other
// accounts' positions.
func (p *Pipeline) discover(ctx context.Context) ([]string, error) {
	migrations, err := p.migrations(ctx)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, m := range migrations {
		out = append(out, m.Receiver)
	}
	for _, t := range p.tokens {
		records, err := p.env.ScanRecords(ctx, t.contract, p.decoder, "Transfer")
		if err != nil {
			return nil, err
		}
		for _, rec := range records {
			for _, a := range rec.Accounts {
				if a == p.beanstalk.Address {
					continue
				}
				out = append(out, a.Hex())
			}
		}
	}
	return out, nil
}

func (p *Pipeline) resolveTarget(ctx context.Context, candidates []string) (map[string]assets.Holdings, error) {
	holdings := assets.NewCollector()
	err := p.env.ForEach(ctx, "silo-balances", candidates, func(ctx context.Context, account string) error {
		addr := common.HexToAddress(account)
		for _, t := range p.tokens {
			circulating, err := assets.CallAmount(ctx, t.contract, p.env.SnapshotBlock, "balanceOf", addr)
			if err != nil {
				return err
			}
			internal, err := assets.CallAmount(ctx, p.beanstalk, p.env.SnapshotBlock, "getInternalBalance", addr, t.contract.Address)
			if err != nil {
				return err
			}
			if err := holdings.Put(account, t.Key(Circulating), circulating); err != nil {
				return err
			}
			if err := holdings.Put(account, t.Key(Internal), internal); err != nil {
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

	holdings := assets.NewCollector()
	for _, t := range p.tokens {
		balances, err := p.env.Cache.LoadFixtureCSV(t.fixture)
		if err != nil {
			return nil, err
		}
		lowered := make(map[string]string, len(balances))
		for k := range balances {
			lowered[strings.ToLower(k)] = k
		}
		for _, account := range unmigrated {
			if key, ok := lowered[strings.ToLower(account)]; ok {
				if err := holdings.Put(account, t.Key(Unmigrated), balances[key]); err != nil {
					return nil, err
				}
			}
		}
	}
	return holdings.Result(), nil
}

// aggregate totals every component, plus one overall figure per token.
func (p *Pipeline) aggregate(merged map[string]assets.Holdings) map[string]*big.Int {
	out := make(map[string]*big.Int)
	for key, v := range assets.SumByKey(merged) {
		out[key] = v
		tokenKey, _, _ := strings.Cut(key, ".")
		if out[tokenKey] == nil {
			out[tokenKey] = new(big.Int)
		}
		out[tokenKey].Add(out[tokenKey], v)
	}
	return out
}

// authoritative reports, per token, the supply outside Beanstalk custody,
// which the circulating balances of all holders must add up to.
func (p *Pipeline) authoritative(ctx context.Context, _ map[string]assets.Holdings) (map[string]*big.Int, error) {
	out := make(map[string]*big.Int, len(p.tokens))
	for _, t := range p.tokens {
		supply, err := assets.CallAmount(ctx, t.contract, p.env.SnapshotBlock, "totalSupply")
		if err != nil {
			return nil, err
		}
		custody, err := assets.CallAmount(ctx, t.contract, p.env.SnapshotBlock, "balanceOf", p.beanstalk.Address)
		if err != nil {
			return nil, err
		}
		outside, underflow := supply.Sub(custody)
		if underflow {
			return nil, fmt.Errorf("%s: custody %s exceeds supply %s", t.contract.Name, custody, supply)
		}
		out[t.Key(Circulating)] = outside.Big()
	}
	return out, nil
}
