package silo

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pinto-org/beanstalk-snapshot/internal/amount"
	"github.com/pinto-org/beanstalk-snapshot/internal/assets"
	"github.com/pinto-org/beanstalk-snapshot/internal/assets/assetstest"
	"github.com/pinto-org/beanstalk-snapshot/internal/reconcile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	owner1    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	owner2    = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	receiver1 = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	eoa1      = common.HexToAddress("0x00000000000000000000000000000000000000e1")
	eoa2      = common.HexToAddress("0x00000000000000000000000000000000000000e2")
)

type ledgerState struct {
	balances map[common.Address]map[common.Address]int64
	internal map[common.Address]map[common.Address]int64
	supply   map[common.Address]int64
}

func setup(t *testing.T, state ledgerState) (*assetstest.Harness, *Pipeline) {
	t.Helper()
	chain := assetstest.NewChain()
	h := assetstest.NewHarness(t, chain.Provider(t))
	p, err := New(h.Env)
	require.NoError(t, err)
	bean, lp := p.tokens[0].contract, p.tokens[1].contract
	diamond := p.beanstalk.Address

	chain.Emit(p.beanstalk, "L1DepositsMigrated", 110, owner1, receiver1, []*big.Int{big.NewInt(1)}, []*big.Int{big.NewInt(9)}, []*big.Int{big.NewInt(9)})
	chain.Emit(bean, "Transfer", 200, common.Address{}, eoa1, big.NewInt(100))
	chain.Emit(bean, "Transfer", 300, eoa1, diamond, big.NewInt(40))
	chain.Emit(lp, "Transfer", 400, common.Address{}, eoa2, big.NewInt(7))
	chain.SetCode(receiver1)
	chain.SetCode(diamond)

	for _, tok := range p.tokens {
		tokenAddr := tok.contract.Address
		chain.Handle(tok.contract, "balanceOf", func(args []interface{}) ([]interface{}, error) {
			return []interface{}{big.NewInt(state.balances[tokenAddr][args[0].(common.Address)])}, nil
		})
		chain.Handle(tok.contract, "totalSupply", func([]interface{}) ([]interface{}, error) {
			return []interface{}{big.NewInt(state.supply[tokenAddr])}, nil
		})
	}
	chain.Handle(p.beanstalk, "getInternalBalance", func(args []interface{}) ([]interface{}, error) {
		account, tokenAddr := args[0].(common.Address), args[1].(common.Address)
		return []interface{}{big.NewInt(state.internal[tokenAddr][account])}, nil
	})

	h.WriteFixture(t, "contract-accounts", []string{owner1.Hex(), owner2.Hex()})
	h.WriteCSVFixture(t, "unripe-bean", [][2]string{{owner1.Hex(), "9"}, {owner2.Hex(), "11"}})
	h.WriteCSVFixture(t, "unripe-lp", [][2]string{{owner2.Hex(), "3"}})
	return h, p
}

func defaultState() ledgerState {
	bean, lp, diamond := addresses()
	return ledgerState{
		balances: map[common.Address]map[common.Address]int64{
			bean: {eoa1: 60, diamond: 40, receiver1: 5},
			lp:   {eoa2: 7},
		},
		internal: map[common.Address]map[common.Address]int64{
			bean: {eoa1: 15, receiver1: 4},
		},
		supply: map[common.Address]int64{bean: 105, lp: 7},
	}
}

func addresses() (bean, lp, diamond common.Address) {
	return assets.ArbContracts.UnripeBean, assets.ArbContracts.UnripeLP, assets.ArbContracts.Beanstalk
}

func TestSilo_Run(t *testing.T) {
	h, p := setup(t, defaultState())

	doc, err := reconcile.Run(context.Background(), h.Runner, p.Definition())
	require.NoError(t, err)

	assert.Equal(t, map[string]assets.Holdings{
		receiver1.Hex(): {"bean.circulating": amount.New(5), "bean.internal": amount.New(4)},
	}, doc.Accounts.Contracts)
	assert.Equal(t, map[string]assets.Holdings{
		eoa1.Hex(): {"bean.circulating": amount.New(60), "bean.internal": amount.New(15)},
		eoa2.Hex(): {"lp.circulating": amount.New(7)},
	}, doc.Accounts.EOAs)
	assert.Equal(t, map[string]assets.Holdings{
		owner2.Hex(): {"bean.unmigrated": amount.New(11), "lp.unmigrated": amount.New(3)},
	}, doc.Accounts.PredecessorContracts)

	assert.Equal(t, "65", doc.Totals["bean.circulating"].String())
	assert.Equal(t, "19", doc.Totals["bean.internal"].String())
	assert.Equal(t, "95", doc.Totals["bean"].String())
	assert.Equal(t, "10", doc.Totals["lp"].String())
	assert.Empty(t, doc.Mismatches)
}

func TestSilo_MissedHolderShowsAsDeficit(t *testing.T) {
	state := defaultState()
	bean, _, _ := addresses()
	state.supply[bean] = 112

	h, p := setup(t, state)
	doc, err := reconcile.Run(context.Background(), h.Runner, p.Definition())
	require.NoError(t, err)

	require.Len(t, doc.Mismatches, 1)
	assert.Equal(t, "bean.circulating", doc.Mismatches[0].Name)
	assert.Equal(t, "7", doc.Mismatches[0].Deficit)
}

func TestSilo_DiscoverSkipsCustodyAndNull(t *testing.T) {
	_, p := setup(t, defaultState())

	found, err := p.discover(context.Background())
	require.NoError(t, err)
	normalized := reconcile.NormalizeCandidates(found)
	assert.ElementsMatch(t, []string{receiver1.Hex(), eoa1.Hex(), eoa2.Hex()}, normalized)
}
