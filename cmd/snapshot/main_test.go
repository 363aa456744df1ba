package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pinto-org/beanstalk-snapshot/internal/assets"
	"github.com/pinto-org/beanstalk-snapshot/internal/config"
	"github.com/pinto-org/beanstalk-snapshot/internal/ledger/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Chain:   config.ChainConfig{ArbRPCURL: "http://arb.example", ArbChainID: 42161},
		Blocks:  config.BlockConfig{Snapshot: 2000, ReseedArb: 1000, ReseedEth: 77},
		Scan:    config.ScanConfig{WindowSize: 100, Concurrency: 2},
		Workers: config.WorkerConfig{ClassifyConcurrency: 2, BalanceConcurrency: 3},
		RPC:     config.RPCConfig{RPS: 10, Burst: 10, Timeout: time.Second, RetryAttempts: 2},
		Paths:   config.PathConfig{CacheDir: dir + "/cache", FixtureDir: dir + "/reseed", OutputDir: dir + "/out", LayoutDir: dir + "/layouts"},
		Log:     config.LogConfig{Level: "info"},
	}
}

func TestResolveAssets(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr bool
	}{
		{name: "all", args: []string{"all"}, want: []string{"barn", "field", "silo"}},
		{name: "all wins over names", args: []string{"silo", "ALL"}, want: []string{"barn", "field", "silo"}},
		{name: "order kept", args: []string{"silo", "barn"}, want: []string{"silo", "barn"}},
		{name: "duplicates dropped", args: []string{"field", " Field "}, want: []string{"field"}},
		{name: "unknown", args: []string{"plots"}, wantErr: true},
		{name: "empty", args: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveAssets(tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPipelines_BuildDefinitions(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := mocks.NewMockProvider(ctrl)

	a := newApp(testConfig(t), slog.New(slog.NewJSONHandler(io.Discard, nil)))
	env := a.env(p)

	assert.Equal(t, uint64(1000), env.ScanRange.From)
	assert.Equal(t, uint64(2000), env.ScanRange.To)
	assert.Equal(t, uint64(100), env.ScanRange.Window)
	assert.Equal(t, 3, env.BalanceConcurrency)
	assert.Equal(t, assets.ArbContracts, env.Contracts)

	for _, name := range assetNames() {
		def, err := pipelines[name](env)
		require.NoError(t, err, name)
		assert.Equal(t, name, def.Asset)
		assert.NotNil(t, def.Discover, name)
		assert.NotNil(t, def.ResolveTarget, name)
		assert.NotNil(t, def.ResolvePredecessor, name)
	}
}

func TestLedgerTarget(t *testing.T) {
	cfg := testConfig(t)
	a := newApp(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	arb, err := a.ledgerTarget("arb")
	require.NoError(t, err)
	assert.Equal(t, uint64(42161), arb.chainID)
	assert.Equal(t, uint64(2000), arb.block)

	_, err = a.ledgerTarget("eth")
	assert.ErrorContains(t, err, "ETH_RPC_URL")

	cfg.Chain.EthRPCURL = "http://eth.example"
	eth, err := a.ledgerTarget("ethereum")
	require.NoError(t, err)
	assert.Equal(t, assets.EthereumChainID, eth.chainID)
	assert.Equal(t, uint64(77), eth.block)

	_, err = a.ledgerTarget("base")
	assert.Error(t, err)
}

// newHeadServer answers eth_blockNumber with head and eth_getCode with
// empty code, recording every method called.
func newHeadServer(t *testing.T, head uint64) (*httptest.Server, func() []string) {
	t.Helper()
	var (
		mu      sync.Mutex
		methods []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int    `json:"id"`
			Method string `json:"method"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		methods = append(methods, req.Method)
		mu.Unlock()

		result := `"0x"`
		if req.Method == "eth_blockNumber" {
			result = fmt.Sprintf(`"0x%x"`, head)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%d,"result":%s}`, req.ID, result)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), methods...)
	}
}

func TestClassify_RejectsInvalidAddressBeforeCodeLookup(t *testing.T) {
	srv, methods := newHeadServer(t, 5000)
	cfg := testConfig(t)
	cfg.Chain.ArbRPCURL = srv.URL
	a := newApp(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	_, err := a.classify(context.Background(), "arb", []string{"not-an-address"})
	assert.Error(t, err)
	assert.Equal(t, []string{"eth_blockNumber"}, methods())
}

func TestClassify_LooksUpCodeAtSnapshotBlock(t *testing.T) {
	srv, methods := newHeadServer(t, 5000)
	cfg := testConfig(t)
	cfg.Chain.ArbRPCURL = srv.URL
	a := newApp(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	addr := "0x00000000000000000000000000000000000000a1"
	got, err := a.classify(context.Background(), "arb", []string{addr})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{addr: false}, got)
	assert.Equal(t, []string{"eth_blockNumber", "eth_getCode"}, methods())
}

func TestCheckHead_RejectsBlockAheadOfProvider(t *testing.T) {
	srv, methods := newHeadServer(t, 1500)
	cfg := testConfig(t)
	cfg.Chain.ArbRPCURL = srv.URL
	a := newApp(cfg, slog.New(slog.NewJSONHandler(io.Discard, nil)))

	_, err := a.classify(context.Background(), "arb", []string{"0x00000000000000000000000000000000000000a1"})
	assert.ErrorContains(t, err, "block 2000 is ahead of arbitrum head 1500")

	err = a.runAssets(context.Background(), []string{"barn"})
	assert.ErrorContains(t, err, "block 2000 is ahead of arbitrum head 1500")
	assert.Equal(t, []string{"eth_blockNumber", "eth_blockNumber"}, methods())
}

func TestRunMetricsServer_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runMetricsServer(ctx, "127.0.0.1:0", slog.New(slog.NewJSONHandler(io.Discard, nil)))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}

func TestNewLogger_Levels(t *testing.T) {
	ctx := context.Background()
	assert.True(t, newLogger("debug").Enabled(ctx, slog.LevelDebug))
	assert.False(t, newLogger("info").Enabled(ctx, slog.LevelDebug))
	assert.False(t, newLogger("warn").Enabled(ctx, slog.LevelInfo))
	assert.True(t, newLogger("error").Enabled(ctx, slog.LevelError))
	assert.False(t, newLogger("error").Enabled(ctx, slog.LevelWarn))
}
