package field

import (
	"context"
	"errors"
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
	eoa3      = common.HexToAddress("0x00000000000000000000000000000000000000e3")
)

func setup(t *testing.T, unharvestable int64) (*assetstest.Harness, *Pipeline) {
	t.Helper()
	chain := assetstest.NewChain()
	h := assetstest.NewHarness(t, chain.Provider(t))
	p, err := New(h.Env)
	require.NoError(t, err)

	plots := map[common.Address]map[int64]int64{
		receiver1: {100: 50},
		eoa1:      {200: 20},
		eoa2:      {210: 10},
		eoa3:      {300: 20},
	}

	chain.Emit(p.beanstalk, "L1PlotsMigrated", 120, owner1, receiver1, []*big.Int{big.NewInt(100)}, []*big.Int{big.NewInt(50)})
	chain.Emit(p.beanstalk, "MigratedPlot", 130, eoa1, big.NewInt(200), big.NewInt(30))
	chain.Emit(p.beanstalk, "PlotTransfer", 600, eoa1, eoa2, big.NewInt(0), big.NewInt(200), big.NewInt(10))
	chain.Emit(p.beanstalk, "Sow", 700, eoa3, big.NewInt(0), big.NewInt(300), big.NewInt(5), big.NewInt(20))
	chain.SetCode(receiver1)

	chain.Handle(p.beanstalk, "getPlotIndexesFromAccount", func(args []interface{}) ([]interface{}, error) {
		account := args[0].(common.Address)
		var indexes []*big.Int
		for index := range plots[account] {
			indexes = append(indexes, big.NewInt(index))
		}
		if indexes == nil {
			indexes = []*big.Int{}
		}
		return []interface{}{indexes}, nil
	})
	chain.Handle(p.beanstalk, "plot", func(args []interface{}) ([]interface{}, error) {
		account := args[0].(common.Address)
		index := args[2].(*big.Int).Int64()
		return []interface{}{big.NewInt(plots[account][index])}, nil
	})
	chain.Handle(p.beanstalk, "totalUnharvestable", func(args []interface{}) ([]interface{}, error) {
		if args[0].(*big.Int).Int64() != FieldID {
			return nil, errors.New("execution reverted: unknown field")
		}
		return []interface{}{big.NewInt(unharvestable)}, nil
	})

	h.WriteFixture(t, "contract-accounts", []string{owner1.Hex(), owner2.Hex()})
	h.WriteFixture(t, "pods", map[string]assets.Holdings{
		owner1.Hex(): {"100": amount.New(50)},
		owner2.Hex(): {"400": amount.New(15)},
	})
	return h, p
}

func TestField_Run(t *testing.T) {
	h, p := setup(t, 115)

	doc, err := reconcile.Run(context.Background(), h.Runner, p.Definition())
	require.NoError(t, err)

	assert.Equal(t, map[string]assets.Holdings{receiver1.Hex(): {"100": amount.New(50)}}, doc.Accounts.Contracts)
	assert.Equal(t, map[string]assets.Holdings{
		eoa1.Hex(): {"200": amount.New(20)},
		eoa2.Hex(): {"210": amount.New(10)},
		eoa3.Hex(): {"300": amount.New(20)},
	}, doc.Accounts.EOAs)
	assert.Equal(t, map[string]assets.Holdings{owner2.Hex(): {"400": amount.New(15)}}, doc.Accounts.PredecessorContracts)
	assert.Equal(t, "115", doc.Totals[totalName].String())
	assert.Empty(t, doc.Mismatches)
}

func TestField_DeficitIsAdvisory(t *testing.T) {
	h, p := setup(t, 120)

	doc, err := reconcile.Run(context.Background(), h.Runner, p.Definition())
	require.NoError(t, err)
	require.Len(t, doc.Mismatches, 1)
	assert.Equal(t, "5", doc.Mismatches[0].Deficit)
}

func TestField_OverlapWithPredecessorAborts(t *testing.T) {
	h, p := setup(t, 115)
	h.WriteFixture(t, "contract-accounts", []string{owner1.Hex(), owner2.Hex(), eoa2.Hex()})
	h.WriteFixture(t, "pods", map[string]assets.Holdings{
		owner2.Hex(): {"400": amount.New(15)},
		eoa2.Hex():   {"210": amount.New(10)},
	})

	_, err := reconcile.Run(context.Background(), h.Runner, p.Definition())
	var overlap *reconcile.OverlapError
	require.True(t, errors.As(err, &overlap))
	assert.Equal(t, []string{eoa2.Hex()}, overlap.Addresses)
}
