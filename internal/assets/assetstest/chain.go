package assetstest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pinto-org/beanstalk-snapshot/internal/assets"
	"github.com/pinto-org/beanstalk-snapshot/internal/classifier"
	"github.com/pinto-org/beanstalk-snapshot/internal/ledger"
	"github.com/pinto-org/beanstalk-snapshot/internal/ledger/mocks"
	"github.com/pinto-org/beanstalk-snapshot/internal/reconcile"
	"github.com/pinto-org/beanstalk-snapshot/internal/scanner"
	"github.com/pinto-org/beanstalk-snapshot/internal/scheduler"
	"github.com/pinto-org/beanstalk-snapshot/internal/stepcache"
	"github.com/pinto-org/beanstalk-snapshot/internal/store/jsonfile"
	"go.uber.org/mock/gomock"
)

const (
	FromBlock     uint64 = 100
	SnapshotBlock uint64 = 1000
	FixtureBlock  uint64 = 77
)

// MethodFunc answers one contract method given its unpacked inputs.
type MethodFunc func(args []interface{}) ([]interface{}, error)

// Chain is an in-memory ledger state.
type Chain struct {
	mu      sync.Mutex
	logs    []ledger.Log
	methods map[common.Address]map[string]MethodFunc
	abis    map[common.Address]abi.ABI
	storage map[common.Address]map[common.Hash]common.Hash
	code    map[common.Address]bool
}

func NewChain() *Chain {
	return &Chain{
		methods: make(map[common.Address]map[string]MethodFunc),
		abis:    make(map[common.Address]abi.ABI),
		storage: make(map[common.Address]map[common.Hash]common.Hash),
		code:    make(map[common.Address]bool),
	}
}

// Emit appends an event of c. Indexed arguments become topics.
func (ch *Chain) Emit(c *ledger.Contract, event string, block uint64, args ...interface{}) {
	ev, ok := c.ABI.Events[event]
	if !ok {
		panic(fmt.Sprintf("unknown event %s", event))
	}
	var indexed [][]interface{}
	var data []interface{}
	for i, in := range ev.Inputs {
		if in.Indexed {
			indexed = append(indexed, []interface{}{args[i]})
		} else {
			data = append(data, args[i])
		}
	}
	topics := []common.Hash{ev.ID}
	if len(indexed) > 0 {
		made, err := abi.MakeTopics(indexed...)
		if err != nil {
			panic(err)
		}
		for _, t := range made {
			topics = append(topics, t[0])
		}
	}
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		panic(err)
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.logs = append(ch.logs, ledger.Log{
		Address:     c.Address,
		Topics:      topics,
		Data:        packed,
		BlockNumber: block,
		Index:       uint(len(ch.logs)),
	})
}

// Handle registers fn for method of c.
func (ch *Chain) Handle(c *ledger.Contract, method string, fn MethodFunc) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.methods[c.Address] == nil {
		ch.methods[c.Address] = make(map[string]MethodFunc)
	}
	ch.methods[c.Address][method] = fn
	ch.abis[c.Address] = c.ABI
}

// SetStorage stores word at slot of addr.
func (ch *Chain) SetStorage(addr common.Address, slot, word common.Hash) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.storage[addr] == nil {
		ch.storage[addr] = make(map[common.Hash]common.Hash)
	}
	ch.storage[addr][slot] = word
}

// SetCode marks addr as a contract.
func (ch *Chain) SetCode(addr common.Address) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.code[addr] = true
}

func (ch *Chain) filterLogs(_ context.Context, q ledger.LogQuery) ([]ledger.Log, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	var out []ledger.Log
	for _, l := range ch.logs {
		if l.Address != q.Address || l.BlockNumber < q.FromBlock || l.BlockNumber > q.ToBlock {
			continue
		}
		for _, t := range q.Topics {
			if l.Topics[0] == t {
				out = append(out, l)
				break
			}
		}
	}
	return out, nil
}

func (ch *Chain) callContract(_ context.Context, to common.Address, data []byte, _ uint64) ([]byte, error) {
	ch.mu.Lock()
	parsed, ok := ch.abis[to]
	handlers := ch.methods[to]
	ch.mu.Unlock()
	if !ok || len(data) < 4 {
		return nil, fmt.Errorf("execution reverted: no contract at %s", to.Hex())
	}
	method, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	fn, ok := handlers[method.Name]
	if !ok {
		return nil, fmt.Errorf("execution reverted: %s not handled", method.Name)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, err
	}
	out, err := fn(args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

func (ch *Chain) storageAt(_ context.Context, addr common.Address, slot common.Hash, _ uint64) (common.Hash, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.storage[addr][slot], nil
}

func (ch *Chain) hasCode(_ context.Context, addr common.Address, _ uint64) (bool, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.code[addr], nil
}

// Provider returns a mock provider backed by ch.
func (ch *Chain) Provider(t *testing.T) *mocks.MockProvider {
	t.Helper()
	m := mocks.NewMockProvider(gomock.NewController(t))
	m.EXPECT().Name().Return("test").AnyTimes()
	m.EXPECT().FilterLogs(gomock.Any(), gomock.Any()).DoAndReturn(ch.filterLogs).AnyTimes()
	m.EXPECT().CallContract(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(ch.callContract).AnyTimes()
	m.EXPECT().StorageAt(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(ch.storageAt).AnyTimes()
	m.EXPECT().HasCode(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(ch.hasCode).AnyTimes()
	return m
}

// Harness wires an Env and a Runner over a temporary directory.
type Harness struct {
	Dir    string
	Env    *assets.Env
	Runner *reconcile.Runner
}

func NewHarness(t *testing.T, p ledger.Provider) *Harness {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	sched := scheduler.New(logger)
	cache := stepcache.New(filepath.Join(dir, "cache"), filepath.Join(dir, "reseed"), FixtureBlock, logger)
	env := &assets.Env{
		Provider:           p,
		Contracts:          assets.ArbContracts,
		Scanner:            scanner.New(sched, 4, logger),
		Scheduler:          sched,
		Cache:              cache,
		ScanRange:          scanner.Range{From: FromBlock, To: SnapshotBlock, Window: 100},
		SnapshotBlock:      SnapshotBlock,
		BalanceConcurrency: 4,
		LayoutDir:          filepath.Join(dir, "layouts"),
		Logger:             logger,
	}
	cls := classifier.New(filepath.Join(dir, "cache"), sched, 4, logger)
	runner := reconcile.NewRunner(reconcile.Config{
		ChainID:       assets.ArbitrumChainID,
		SnapshotBlock: SnapshotBlock,
		OutputDir:     filepath.Join(dir, "output"),
	}, cache, cls, p, logger)
	return &Harness{Dir: dir, Env: env, Runner: runner}
}

// WriteFixture writes a JSON fixture named name.
func (h *Harness) WriteFixture(t *testing.T, name string, v interface{}) {
	t.Helper()
	path := filepath.Join(h.Dir, "reseed", fmt.Sprintf("%s%d.json", name, FixtureBlock))
	if _, err := jsonfile.Write(path, v); err != nil {
		t.Fatal(err)
	}
}

// WriteCSVFixture writes a CSV fixture named name with a header row.
func (h *Harness) WriteCSVFixture(t *testing.T, name string, rows [][2]string) {
	t.Helper()
	content := "account,balance\n"
	for _, r := range rows {
		content += r[0] + "," + r[1] + "\n"
	}
	dir := filepath.Join(h.Dir, "reseed")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("%s%d.csv", name, FixtureBlock)), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
