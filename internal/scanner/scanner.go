package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/pinto-org/beanstalk-snapshot/internal/ledger"
	"github.com/pinto-org/beanstalk-snapshot/internal/metrics"
	"github.com/pinto-org/beanstalk-snapshot/internal/scheduler"
)

const DefaultConcurrency = 20

// LogSource is the subset of ledger.Provider the scanner needs.
type LogSource interface {
	FilterLogs(ctx context.Context, q ledger.LogQuery) ([]ledger.Log, error)
}

// Range is an inclusive block range split into windows of at most Window blocks.
type Range struct {
	From   uint64
	To     uint64
	Window uint64
}

func (r Range) validate() error {
	if r.Window == 0 {
		return fmt.Errorf("window size must be positive")
	}
	if r.From > r.To {
		return fmt.Errorf("from block %d is after to block %d", r.From, r.To)
	}
	return nil
}

// Windows returns the consecutive [from, to] windows covering r.
func (r Range) Windows() [][2]uint64 {
	if r.validate() != nil {
		return nil
	}
	var out [][2]uint64
	for from := r.From; ; from += r.Window {
		to := from + r.Window - 1
		if to > r.To || to < from {
			to = r.To
		}
		out = append(out, [2]uint64{from, to})
		if to == r.To {
			return out
		}
	}
}

type Scanner struct {
	sched       *scheduler.Scheduler
	concurrency int
	logger      *slog.Logger
}

func New(sched *scheduler.Scheduler, concurrency int, logger *slog.Logger) *Scanner {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		sched:       sched,
		concurrency: concurrency,
		logger:      logger.With("component", "scanner"),
	}
}

// Scan returns every log matching q within r. Logs are concatenated in
// window order, preserving provider order inside each window. Any window
// failure fails the whole scan.
func (s *Scanner) Scan(ctx context.Context, src LogSource, q ledger.LogQuery, r Range, label string) ([]ledger.Log, error) {
	if err := r.validate(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", label, err)
	}

	windows := r.Windows()
	results := make([][]ledger.Log, len(windows))
	var mu sync.Mutex

	queueID := scheduler.NewQueueID("scan")
	for i, w := range windows {
		i, w := i, w
		windowQuery := q
		windowQuery.FromBlock = w[0]
		windowQuery.ToBlock = w[1]

		err := s.sched.Submit(ctx, queueID, s.concurrency, func(ctx context.Context) error {
			logs, err := src.FilterLogs(ctx, windowQuery)
			metrics.ScannerWindowsTotal.WithLabelValues(label).Inc()
			if err != nil {
				return fmt.Errorf("window %d-%d: %w", w[0], w[1], err)
			}
			mu.Lock()
			results[i] = logs
			mu.Unlock()
			return nil
		})
		if err != nil {
			_ = s.sched.Settle(context.WithoutCancel(ctx), queueID)
			return nil, fmt.Errorf("scan %s: %w", label, err)
		}
	}

	if err := s.sched.Drain(ctx, queueID); err != nil {
		return nil, fmt.Errorf("scan %s: %w", label, err)
	}

	var total int
	for _, logs := range results {
		total += len(logs)
	}
	out := make([]ledger.Log, 0, total)
	for _, logs := range results {
		out = append(out, logs...)
	}

	metrics.ScannerEventsTotal.WithLabelValues(label).Add(float64(len(out)))
	s.logger.Info("scan complete",
		"events", label,
		"from_block", r.From,
		"to_block", r.To,
		"windows", len(windows),
		"count", len(out),
	)
	return out, nil
}

// ScanEvents scans the named events of c and decodes each log.
func (s *Scanner) ScanEvents(ctx context.Context, c *ledger.Contract, r Range, events ...string) ([]ledger.DecodedEvent, error) {
	q, err := c.EventQuery(events...)
	if err != nil {
		return nil, err
	}
	label := c.Name + "." + strings.Join(events, "|")
	logs, err := s.Scan(ctx, c.Provider(), q, r, label)
	if err != nil {
		return nil, err
	}

	decoded := make([]ledger.DecodedEvent, 0, len(logs))
	for _, l := range logs {
		ev, err := c.Decode(l)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", label, err)
		}
		decoded = append(decoded, ev)
	}
	return decoded, nil
}
