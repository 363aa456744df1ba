package assets

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pinto-org/beanstalk-snapshot/internal/amount"
	"github.com/pinto-org/beanstalk-snapshot/internal/ledger"
	"github.com/pinto-org/beanstalk-snapshot/internal/scanner"
	"github.com/pinto-org/beanstalk-snapshot/internal/scheduler"
	"github.com/pinto-org/beanstalk-snapshot/internal/stepcache"
)

// Holdings is the balance shape of one account: sub-identifier (fertilizer
// id, plot index or token component) to amount.
type Holdings = map[string]amount.Amount

// Env is everything an asset pipeline needs to talk to the target ledger.
type Env struct {
	Provider           ledger.Provider
	Contracts          Contracts
	Scanner            *scanner.Scanner
	Scheduler          *scheduler.Scheduler
	Cache              *stepcache.Cache
	ScanRange          scanner.Range
	SnapshotBlock      uint64
	BalanceConcurrency int
	LayoutDir          string
	Logger             *slog.Logger
}

// Contract binds abiJSON at addr on the target provider.
func (e *Env) Contract(name string, addr common.Address, abiJSON string) (*ledger.Contract, error) {
	return ledger.NewContract(name, addr, abiJSON, e.Provider)
}

// ScanRecords scans events of c over the configured range and normalizes
// them with dec.
func (e *Env) ScanRecords(ctx context.Context, c *ledger.Contract, dec *ledger.Decoder, events ...string) ([]ledger.Record, error) {
	decoded, err := e.Scanner.ScanEvents(ctx, c, e.ScanRange, events...)
	if err != nil {
		return nil, err
	}
	records := make([]ledger.Record, 0, len(decoded))
	for _, ev := range decoded {
		rec, err := dec.Normalize(ev)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	e.Logger.Info("events found",
		"provider", e.Provider.Name(),
		"contract", c.Name,
		"events", strings.Join(events, ","),
		"count", len(records),
	)
	return records, nil
}

// ForEach runs fn for every key with at most BalanceConcurrency calls in
// flight and returns once all have finished. Any failure fails the batch.
func (e *Env) ForEach(ctx context.Context, label string, keys []string, fn func(ctx context.Context, key string) error) error {
	queueID := scheduler.NewQueueID(label)
	for _, k := range keys {
		k := k
		if err := e.Scheduler.Submit(ctx, queueID, e.BalanceConcurrency, func(ctx context.Context) error {
			if err := fn(ctx, k); err != nil {
				return fmt.Errorf("%s %s: %w", label, k, err)
			}
			return nil
		}); err != nil {
			_ = e.Scheduler.Settle(context.WithoutCancel(ctx), queueID)
			return err
		}
	}
	return e.Scheduler.Drain(ctx, queueID)
}

// Migration links a predecessor-ledger owner to its target-ledger receiver.
type Migration struct {
	Owner    string          `json:"owner"`
	Receiver string          `json:"receiver"`
	IDs      []amount.Amount `json:"ids,omitempty"`
}

// Migrations converts records carrying an owner and receiver.
func Migrations(records []ledger.Record) ([]Migration, error) {
	out := make([]Migration, 0, len(records))
	for _, rec := range records {
		m := Migration{Owner: rec.Owner.Hex(), Receiver: rec.Receiver.Hex()}
		for _, id := range rec.IDs {
			a, err := amount.FromBig(id)
			if err != nil {
				return nil, fmt.Errorf("%s id: %w", rec.Event, err)
			}
			m.IDs = append(m.IDs, a)
		}
		out = append(out, m)
	}
	return out, nil
}

// Owners returns the lower-cased owner set of ms.
func Owners(ms []Migration) map[string]struct{} {
	out := make(map[string]struct{}, len(ms))
	for _, m := range ms {
		out[strings.ToLower(m.Owner)] = struct{}{}
	}
	return out
}

// UnmigratedContracts returns the predecessor-ledger contract accounts
// (the "contract-accounts" fixture) whose owner never migrated.
func UnmigratedContracts(c *stepcache.Cache, ms []Migration) ([]string, error) {
	var contracts []string
	if err := c.LoadFixtureJSON("contract-accounts", &contracts); err != nil {
		return nil, err
	}
	owners := Owners(ms)
	out := make([]string, 0, len(contracts))
	for _, addr := range contracts {
		if _, migrated := owners[strings.ToLower(addr)]; !migrated {
			out = append(out, addr)
		}
	}
	return out, nil
}

// SelectHolders returns the nonzero holdings in all whose key is one of
// accounts, matched case-insensitively and keyed as in accounts.
func SelectHolders(all map[string]Holdings, accounts []string) map[string]Holdings {
	lowered := make(map[string]Holdings, len(all))
	for k, v := range all {
		lowered[strings.ToLower(k)] = v
	}
	out := make(map[string]Holdings)
	for _, acct := range accounts {
		h := NonZero(lowered[strings.ToLower(acct)])
		if len(h) > 0 {
			out[acct] = h
		}
	}
	return out
}

// NonZero returns h without zero entries, or nil if nothing remains.
func NonZero(h Holdings) Holdings {
	var out Holdings
	for k, v := range h {
		if v.IsZero() {
			continue
		}
		if out == nil {
			out = make(Holdings)
		}
		out[k] = v
	}
	return out
}

// SumByKey totals every sub-identifier across accounts.
func SumByKey(merged map[string]Holdings) map[string]*big.Int {
	out := make(map[string]*big.Int)
	for _, h := range merged {
		for k, v := range h {
			if out[k] == nil {
				out[k] = new(big.Int)
			}
			out[k].Add(out[k], v.Big())
		}
	}
	return out
}

// Total sums every amount held by every account.
func Total(merged map[string]Holdings) *big.Int {
	total := new(big.Int)
	for _, h := range merged {
		total.Add(total, amount.Sum(h))
	}
	return total
}

// SortedKeys returns the keys of m in order.
func SortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Collector accumulates per-account holdings from concurrent tasks.
type Collector struct {
	mu  sync.Mutex
	out map[string]Holdings
}

func NewCollector() *Collector {
	return &Collector{out: make(map[string]Holdings)}
}

// Put records a nonzero amount for account under key, adding to any amount
// already recorded there.
func (c *Collector) Put(account, key string, v amount.Amount) error {
	if v.IsZero() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.out[account]
	if !ok {
		h = make(Holdings)
		c.out[account] = h
	}
	sum, err := h[key].Add(v)
	if err != nil {
		return fmt.Errorf("%s %s: %w", account, key, err)
	}
	h[key] = sum
	return nil
}

// Result returns the collected holdings.
func (c *Collector) Result() map[string]Holdings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out
}

// CallAmount calls a single-uint-returning method of c at block.
func CallAmount(ctx context.Context, c *ledger.Contract, block uint64, method string, args ...interface{}) (amount.Amount, error) {
	values, err := c.Call(ctx, block, method, args...)
	if err != nil {
		return amount.Zero, err
	}
	if len(values) != 1 {
		return amount.Zero, fmt.Errorf("%s.%s: expected 1 output, got %d", c.Name, method, len(values))
	}
	n, ok := values[0].(*big.Int)
	if !ok {
		return amount.Zero, fmt.Errorf("%s.%s: unexpected output type %T", c.Name, method, values[0])
	}
	return amount.FromBig(n)
}
