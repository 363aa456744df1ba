package stepcache

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pinto-org/beanstalk-snapshot/internal/amount"
	"github.com/pinto-org/beanstalk-snapshot/internal/metrics"
	"github.com/pinto-org/beanstalk-snapshot/internal/store/jsonfile"
	"github.com/pinto-org/beanstalk-snapshot/internal/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrMissingDependency is returned by Require when the step it depends on
// has not been cached yet.
var ErrMissingDependency = errors.New("missing cache dependency")

type Cache struct {
	dir          string
	fixtureDir   string
	fixtureBlock uint64
	logger       *slog.Logger
}

// New returns a cache writing step files under dir. Fixtures are read from
// fixtureDir with fixtureBlock appended to their name.
func New(dir, fixtureDir string, fixtureBlock uint64, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		dir:          dir,
		fixtureDir:   fixtureDir,
		fixtureBlock: fixtureBlock,
		logger:       logger.With("component", "stepcache"),
	}
}

// Path returns the cache file for step name.
func (c *Cache) Path(name string) string {
	return filepath.Join(c.dir, name+".json")
}

// Has reports whether step name is cached.
func (c *Cache) Has(name string) (bool, error) {
	return jsonfile.Exists(c.Path(name))
}

// Once returns the cached result of step name, or runs compute, persists
// its result and returns the re-read value. A failing compute writes nothing.
func Once[T any](ctx context.Context, c *Cache, name string, compute func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	path := c.Path(name)

	hit, err := jsonfile.Exists(path)
	if err != nil {
		return zero, err
	}
	if hit {
		var cached T
		if err := jsonfile.Read(path, &cached); err != nil {
			return zero, fmt.Errorf("step %s: %w", name, err)
		}
		metrics.StepCacheHits.WithLabelValues(name).Inc()
		c.logger.Info("step cache hit", "step", name)
		return cached, nil
	}

	metrics.StepCacheMisses.WithLabelValues(name).Inc()
	c.logger.Info("step cache miss, computing", "step", name)

	ctx, span := tracing.Tracer("stepcache").Start(ctx, "stepcache.compute")
	span.SetAttributes(attribute.String("step", name))
	defer span.End()

	start := time.Now()
	result, err := compute(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return zero, fmt.Errorf("step %s: %w", name, err)
	}
	metrics.StepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if _, err := jsonfile.Write(path, result); err != nil {
		return zero, fmt.Errorf("step %s: %w", name, err)
	}

	// Callers see the same representation on hit and miss.
	var reparsed T
	if err := jsonfile.Read(path, &reparsed); err != nil {
		return zero, fmt.Errorf("step %s: %w", name, err)
	}
	c.logger.Info("step cached", "step", name, "duration", time.Since(start).String())
	return reparsed, nil
}

// Require returns the cached result of step name without computing it.
func Require[T any](c *Cache, name string) (T, error) {
	var zero T
	path := c.Path(name)
	ok, err := jsonfile.Exists(path)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, fmt.Errorf("step %s: %w", name, ErrMissingDependency)
	}
	var cached T
	if err := jsonfile.Read(path, &cached); err != nil {
		return zero, fmt.Errorf("step %s: %w", name, err)
	}
	return cached, nil
}

func (c *Cache) fixturePath(name, ext string) string {
	return filepath.Join(c.fixtureDir, name+strconv.FormatUint(c.fixtureBlock, 10)+"."+ext)
}

// LoadFixtureJSON decodes fixture <name><block>.json into v.
func (c *Cache) LoadFixtureJSON(name string, v interface{}) error {
	path := c.fixturePath(name, "json")
	if err := jsonfile.Read(path, v); err != nil {
		return fmt.Errorf("fixture %s: %w", name, err)
	}
	return nil
}

// LoadFixtureCSV reads fixture <name><block>.csv as key,value rows after a
// header line. Repeated keys are summed.
func (c *Cache) LoadFixtureCSV(name string) (map[string]amount.Amount, error) {
	path := c.fixturePath(name, "csv")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", name, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	out := make(map[string]amount.Amount)
	header := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fixture %s: %w", name, err)
		}
		if header {
			header = false
			continue
		}
		if len(rec) < 2 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		value, err := amount.Parse(rec[1])
		if err != nil {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("fixture %s line %d: %w", name, line, err)
		}
		key := strings.TrimSpace(rec[0])
		sum, err := out[key].Add(value)
		if err != nil {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("fixture %s line %d: %w", name, line, err)
		}
		out[key] = sum
	}
	return out, nil
}
