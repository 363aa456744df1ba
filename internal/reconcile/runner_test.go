package reconcile

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pinto-org/beanstalk-snapshot/internal/amount"
	"github.com/pinto-org/beanstalk-snapshot/internal/classifier"
	"github.com/pinto-org/beanstalk-snapshot/internal/ledger/mocks"
	"github.com/pinto-org/beanstalk-snapshot/internal/scheduler"
	"github.com/pinto-org/beanstalk-snapshot/internal/stepcache"
	"github.com/pinto-org/beanstalk-snapshot/internal/store/jsonfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	addrA = common.HexToAddress("0x000000000000000000000000000000000000000a").Hex()
	addrB = common.HexToAddress("0x000000000000000000000000000000000000000b").Hex()
	addrC = common.HexToAddress("0x000000000000000000000000000000000000000c").Hex()
)

type harness struct {
	runner  *Runner
	checker *mocks.MockProvider
	dir     string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	ctrl := gomock.NewController(t)
	checker := mocks.NewMockProvider(ctrl)
	logger, _ := bufferLogger()

	cache := stepcache.New(filepath.Join(dir, "cache"), filepath.Join(dir, "reseed"), 1, logger)
	cls := classifier.New(filepath.Join(dir, "cache"), scheduler.New(logger), 4, logger)
	runner := NewRunner(Config{ChainID: 42161, SnapshotBlock: 500, OutputDir: filepath.Join(dir, "output")}, cache, cls, checker, logger)
	return &harness{runner: runner, checker: checker, dir: dir}
}

func scenario(authoritativeTotal int64) Definition[amount.Amount] {
	return Definition[amount.Amount]{
		Asset: "test",
		Discover: func(context.Context) ([]string, error) {
			return []string{addrA, addrB, common.Address{}.Hex()}, nil
		},
		ResolveTarget: func(_ context.Context, candidates []string) (map[string]amount.Amount, error) {
			out := make(map[string]amount.Amount)
			for _, c := range candidates {
				if c == addrA {
					out[c] = amount.New(5)
				}
			}
			return out, nil
		},
		ResolvePredecessor: func(context.Context) (map[string]amount.Amount, error) {
			return map[string]amount.Amount{addrC: amount.New(3)}, nil
		},
		Aggregate: func(merged map[string]amount.Amount) map[string]*big.Int {
			return map[string]*big.Int{"supply": amount.Sum(merged)}
		},
		Authoritative: func(context.Context, map[string]amount.Amount) (map[string]*big.Int, error) {
			return map[string]*big.Int{"supply": big.NewInt(authoritativeTotal)}, nil
		},
	}
}

func TestRun_EndToEndZeroDeficit(t *testing.T) {
	h := newHarness(t)
	h.checker.EXPECT().HasCode(gomock.Any(), common.HexToAddress(addrA), uint64(500)).Return(true, nil).Times(1)

	doc, err := Run(context.Background(), h.runner, scenario(8))
	require.NoError(t, err)

	assert.Equal(t, map[string]amount.Amount{addrA: amount.New(5)}, doc.Accounts.Contracts)
	assert.Empty(t, doc.Accounts.EOAs)
	assert.Equal(t, map[string]amount.Amount{addrC: amount.New(3)}, doc.Accounts.PredecessorContracts)
	assert.Equal(t, "8", doc.Totals["supply"].String())
	assert.Empty(t, doc.Mismatches)

	var persisted Document[amount.Amount]
	require.NoError(t, jsonfile.Read(OutputPath(filepath.Join(h.dir, "output"), "test"), &persisted))
	assert.Equal(t, uint64(500), persisted.SnapshotBlock)
	assert.Equal(t, doc.Accounts, persisted.Accounts)
}

func TestRun_EndToEndDeficitDoesNotAbort(t *testing.T) {
	h := newHarness(t)
	h.checker.EXPECT().HasCode(gomock.Any(), common.HexToAddress(addrA), uint64(500)).Return(true, nil).Times(1)

	doc, err := Run(context.Background(), h.runner, scenario(9))
	require.NoError(t, err)
	require.Len(t, doc.Mismatches, 1)
	assert.Equal(t, "1", doc.Mismatches[0].Deficit)
	assert.Equal(t, "supply", doc.Mismatches[0].Name)
}

func TestRun_CachedStagesAreNotRecomputed(t *testing.T) {
	h := newHarness(t)
	h.checker.EXPECT().HasCode(gomock.Any(), common.HexToAddress(addrA), uint64(500)).Return(true, nil).Times(1)

	_, err := Run(context.Background(), h.runner, scenario(8))
	require.NoError(t, err)

	def := scenario(8)
	def.Discover = func(context.Context) ([]string, error) {
		return nil, errors.New("discover must not run again")
	}
	def.ResolveTarget = func(context.Context, []string) (map[string]amount.Amount, error) {
		return nil, errors.New("target must not run again")
	}
	_, err = Run(context.Background(), h.runner, def)
	require.NoError(t, err)
}

func TestRun_OverlapAborts(t *testing.T) {
	h := newHarness(t)
	def := scenario(8)
	def.ResolvePredecessor = func(context.Context) (map[string]amount.Amount, error) {
		return map[string]amount.Amount{addrC: amount.New(3), addrA: amount.New(1)}, nil
	}

	_, err := Run(context.Background(), h.runner, def)
	require.Error(t, err)
	var overlap *OverlapError
	assert.True(t, errors.As(err, &overlap))

	ok, err := jsonfile.Exists(OutputPath(filepath.Join(h.dir, "output"), "test"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRun_StageFailureKeepsEarlierSteps(t *testing.T) {
	h := newHarness(t)
	def := scenario(8)
	def.ResolvePredecessor = func(context.Context) (map[string]amount.Amount, error) {
		return nil, errors.New("fixture missing")
	}

	_, err := Run(context.Background(), h.runner, def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), StagePredecessor)

	for _, step := range []string{"arb-wallets", "arb-balances"} {
		ok, err := h.runner.Cache().Has(StepName("test", step))
		require.NoError(t, err)
		assert.True(t, ok, step)
	}
	ok, err := h.runner.Cache().Has(StepName("test", "eth-balances"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRun_StorageChecksAndDerive(t *testing.T) {
	h := newHarness(t)
	h.checker.EXPECT().HasCode(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil).AnyTimes()

	def := scenario(16)
	def.Derive = func(_ context.Context, merged map[string]amount.Amount) (map[string]amount.Amount, error) {
		out := make(map[string]amount.Amount, len(merged))
		for k, v := range merged {
			doubled, err := v.Add(v)
			if err != nil {
				return nil, err
			}
			out[k] = doubled
		}
		return out, nil
	}
	def.StorageChecks = func(_ context.Context, merged map[string]amount.Amount) ([]StorageCheck, error) {
		return []StorageCheck{{
			Name:     "per-holder",
			Expected: map[string]*big.Int{addrA: big.NewInt(10)},
			Computed: map[string]*big.Int{addrA: merged[addrA].Big()},
		}}, nil
	}

	doc, err := Run(context.Background(), h.runner, def)
	require.NoError(t, err)
	assert.Empty(t, doc.Mismatches)
	assert.Equal(t, "10", doc.Accounts.EOAs[addrA].String())
	assert.Equal(t, "16", doc.Totals["supply"].String())
}

func TestRun_RejectsIncompleteDefinition(t *testing.T) {
	h := newHarness(t)
	_, err := Run(context.Background(), h.runner, Definition[amount.Amount]{Asset: "x"})
	assert.Error(t, err)
}
