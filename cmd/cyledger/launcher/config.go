package launcher

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/urfave/cli.v1"
)

// Config aggregates everything the launcher needs to run a scan.
type Config struct {
	DataDir string
	Network string

	// Epochs optionally points at a YAML schedule overriding the built-in
	// epoch table of the selected network.
	Epochs string

	RPC     RPCConfig
	Scan    ScanConfig
	DB      DBConfig
	Logging LoggingConfig
}

type RPCConfig struct {
	URL     string
	Timeout time.Duration
}

type ScanConfig struct {
	From      uint64
	To        uint64 // 0 means current head
	BatchSize uint64
}

type DBConfig struct {
	CacheMB int
}

type LoggingConfig struct {
	Verbosity int
	Format    string
}

func defaultConfig() Config {
	return Config{
		DataDir: filepath.Join(GuessHomeDir(), ".cyledger"),
		Network: "flare",
		RPC:     RPCConfig{URL: "http://127.0.0.1:8545", Timeout: 30 * time.Second},
		Scan:    ScanConfig{BatchSize: 2048},
		DB:      DBConfig{CacheMB: 256},
		Logging: LoggingConfig{Verbosity: 3, Format: "text"},
	}
}

// MakeConfig merges defaults with CLI flag overrides and prepares the datadir.
func MakeConfig(ctx *cli.Context) (Config, error) {
	cfg := defaultConfig()
	applyCLIOverrides(ctx, &cfg)

	if err := ensureDir(cfg.DataDir); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) {
	if ctx.IsSet("datadir") {
		cfg.DataDir = resolvePath(ctx.String("datadir"))
	}
	if ctx.IsSet("network") {
		cfg.Network = ctx.String("network")
	}
	if ctx.IsSet("epochs") {
		cfg.Epochs = resolvePath(ctx.String("epochs"))
	}

	if ctx.IsSet("rpc.url") {
		cfg.RPC.URL = ctx.String("rpc.url")
	}
	if ctx.IsSet("rpc.timeout") {
		cfg.RPC.Timeout = ctx.Duration("rpc.timeout")
	}

	if ctx.IsSet("scan.from") {
		cfg.Scan.From = ctx.Uint64("scan.from")
	}
	if ctx.IsSet("scan.to") {
		cfg.Scan.To = ctx.Uint64("scan.to")
	}
	if ctx.IsSet("scan.batch") {
		cfg.Scan.BatchSize = ctx.Uint64("scan.batch")
	}

	if ctx.IsSet("cache") {
		cfg.DB.CacheMB = ctx.Int("cache")
	}

	if ctx.IsSet("log.format") {
		cfg.Logging.Format = ctx.String("log.format")
	}
	if ctx.IsSet("log.verbosity") {
		cfg.Logging.Verbosity = ctx.Int("log.verbosity")
	}
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(GuessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GuessWorkDir(), p)
}

func GuessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func GuessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
