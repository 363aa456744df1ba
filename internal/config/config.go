package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pinto-org/beanstalk-snapshot/internal/assets"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Chain   ChainConfig
	Blocks  BlockConfig
	Scan    ScanConfig
	Workers WorkerConfig
	RPC     RPCConfig
	Paths   PathConfig
	Server  ServerConfig
	Tracing TracingConfig
	Log     LogConfig
}

type ChainConfig struct {
	ArbRPCURL  string
	EthRPCURL  string
	ArbChainID uint64
}

type BlockConfig struct {
	Snapshot  uint64
	ReseedArb uint64
	ReseedEth uint64
}

type ScanConfig struct {
	WindowSize  uint64
	Concurrency int
}

type WorkerConfig struct {
	ClassifyConcurrency int
	BalanceConcurrency  int
}

type RPCConfig struct {
	RPS           float64
	Burst         int
	Timeout       time.Duration
	RetryAttempts int
}

type PathConfig struct {
	CacheDir   string
	FixtureDir string
	OutputDir  string
	LayoutDir  string
}

type ServerConfig struct {
	// MetricsAddr is the listen address of the /metrics endpoint; empty disables it.
	MetricsAddr string
}

type TracingConfig struct {
	Enabled  bool
	Endpoint string
	Insecure bool
}

type LogConfig struct {
	Level string
}

// Load reads configuration from the environment. If SNAPSHOT_CONFIG_FILE
// names a YAML file of KEY: value pairs, its values apply wherever the
// environment leaves a key unset.
func Load() (*Config, error) {
	src, err := newSource(os.Getenv("SNAPSHOT_CONFIG_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Chain: ChainConfig{
			ArbRPCURL:  src.getEnv("ARB_RPC_URL", ""),
			EthRPCURL:  src.getEnv("ETH_RPC_URL", ""),
			ArbChainID: src.getEnvUint64("ARB_CHAIN_ID", assets.ArbitrumChainID),
		},
		Blocks: BlockConfig{
			Snapshot:  src.getEnvUint64("SNAPSHOT_BLOCK", assets.SnapshotBlockArb),
			ReseedArb: src.getEnvUint64("RESEED_BLOCK_ARB", assets.ReseedBlockArb),
			ReseedEth: src.getEnvUint64("RESEED_BLOCK_ETH", assets.ReseedBlockEth),
		},
		Scan: ScanConfig{
			WindowSize:  src.getEnvUint64("SCAN_WINDOW_SIZE", 10000),
			Concurrency: src.getEnvInt("SCAN_CONCURRENCY", 20),
		},
		Workers: WorkerConfig{
			ClassifyConcurrency: src.getEnvInt("CLASSIFY_CONCURRENCY", 50),
			BalanceConcurrency:  src.getEnvInt("BALANCE_CONCURRENCY", 50),
		},
		RPC: RPCConfig{
			RPS:           src.getEnvFloat("RPC_RPS", 25),
			Burst:         src.getEnvInt("RPC_BURST", 50),
			Timeout:       time.Duration(src.getEnvInt("RPC_TIMEOUT_SEC", 30)) * time.Second,
			RetryAttempts: src.getEnvInt("RPC_RETRY_ATTEMPTS", 4),
		},
		Paths: PathConfig{
			CacheDir:   src.getEnv("CACHE_DIR", "cache"),
			FixtureDir: src.getEnv("FIXTURE_DIR", "reseed"),
			OutputDir:  src.getEnv("OUTPUT_DIR", "output"),
			LayoutDir:  src.getEnv("LAYOUT_DIR", "layouts"),
		},
		Server: ServerConfig{
			MetricsAddr: src.getEnv("METRICS_ADDR", ""),
		},
		Tracing: TracingConfig{
			Enabled:  src.getEnvBool("TRACING_ENABLED", false),
			Endpoint: src.getEnv("TRACING_ENDPOINT", "localhost:4317"),
			Insecure: src.getEnvBool("TRACING_INSECURE", true),
		},
		Log: LogConfig{
			Level: strings.ToLower(src.getEnv("LOG_LEVEL", "info")),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Chain.ArbRPCURL == "" {
		return fmt.Errorf("ARB_RPC_URL is required")
	}
	if c.Scan.WindowSize == 0 {
		return fmt.Errorf("SCAN_WINDOW_SIZE must be positive")
	}
	if c.Scan.Concurrency <= 0 || c.Workers.ClassifyConcurrency <= 0 || c.Workers.BalanceConcurrency <= 0 {
		return fmt.Errorf("concurrency limits must be positive")
	}
	if c.RPC.Burst <= 0 {
		return fmt.Errorf("RPC_BURST must be positive")
	}
	if c.RPC.RetryAttempts <= 0 {
		return fmt.Errorf("RPC_RETRY_ATTEMPTS must be positive")
	}
	if c.Blocks.ReseedArb > c.Blocks.Snapshot {
		return fmt.Errorf("RESEED_BLOCK_ARB %d is after SNAPSHOT_BLOCK %d", c.Blocks.ReseedArb, c.Blocks.Snapshot)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.Log.Level)
	}
	return nil
}

// source resolves keys from the environment, then from the optional file.
type source struct {
	file map[string]string
}

func newSource(path string) (*source, error) {
	src := &source{file: map[string]string{}}
	if path == "" {
		return src, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var values map[string]interface{}
	if err := yaml.Unmarshal(raw, &values); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	for k, v := range values {
		if v == nil {
			continue
		}
		src.file[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return src, nil
}

func (s *source) getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v, ok := s.file[key]; ok && v != "" {
		return v
	}
	return fallback
}

func (s *source) getEnvInt(key string, fallback int) int {
	if v := s.getEnv(key, ""); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func (s *source) getEnvUint64(key string, fallback uint64) uint64 {
	if v := s.getEnv(key, ""); v != "" {
		if i, err := strconv.ParseUint(v, 10, 64); err == nil {
			return i
		}
	}
	return fallback
}

func (s *source) getEnvFloat(key string, fallback float64) float64 {
	if v := s.getEnv(key, ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func (s *source) getEnvBool(key string, fallback bool) bool {
	if v := s.getEnv(key, ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
