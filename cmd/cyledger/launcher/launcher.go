package launcher

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/cyclofinance/cy-ledger/chain"
	"github.com/cyclofinance/cy-ledger/cyclo"
	"github.com/cyclofinance/cy-ledger/eligibility"
	"github.com/cyclofinance/cy-ledger/epoch"
	"github.com/cyclofinance/cy-ledger/flags"
	"github.com/cyclofinance/cy-ledger/scan"
	"github.com/cyclofinance/cy-ledger/store"
)

var app = flags.NewApp()

func init() {
	app.Flags = append(app.Flags, flags.CommonFlags()...)
	app.Flags = append(app.Flags, flags.RPCFlags()...)
	app.Flags = append(app.Flags, flags.ScanFlags()...)
	app.Action = run
}

// Launch parses flags and runs the ledger scan.
func Launch(args []string) error {
	return app.Run(args)
}

func run(ctx *cli.Context) error {
	cfg, err := MakeConfig(ctx)
	if err != nil {
		return err
	}

	lg, err := makeLogger(cfg.Logging)
	if err != nil {
		return err
	}

	rules, err := cyclo.RulesByName(cfg.Network)
	if err != nil {
		return err
	}
	if cfg.Epochs != "" {
		schedule, err := epoch.FromYAML(cfg.Epochs)
		if err != nil {
			return err
		}
		rules.Epochs = schedule
	}

	lg.WithFields(logrus.Fields{
		"network": rules.Name,
		"rules":   rules.String(),
	}).Info("starting eligibility ledger")

	db, err := store.New(filepath.Join(cfg.DataDir, "ledger"), store.Options{CacheSize: cfg.DB.CacheMB})
	if err != nil {
		return err
	}
	defer db.Close()

	runCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := ethclient.Dial(cfg.RPC.URL)
	if err != nil {
		return errors.Wrap(err, "failed to connect to the chain node")
	}
	defer client.Close()

	chainID, err := client.ChainID(runCtx)
	if err != nil {
		return errors.Wrap(err, "failed to query chain ID")
	}
	if chainID.Uint64() != rules.NetworkID {
		return errors.Errorf("node chain ID %d does not match network %q (%d)",
			chainID.Uint64(), rules.Name, rules.NetworkID)
	}

	engine, err := eligibility.New(rules, db, chain.NewClient(client, cfg.RPC.Timeout, lg), lg)
	if err != nil {
		return err
	}

	to := cfg.Scan.To
	if to == 0 {
		head, err := client.BlockNumber(runCtx)
		if err != nil {
			return errors.Wrap(err, "failed to fetch head block")
		}
		to = head
	}

	scanner := scan.NewScanner(client, engine, cfg.Scan.BatchSize, lg)
	if err := scanner.Run(runCtx, cfg.Scan.From, to); err != nil {
		return err
	}

	lg.WithFields(logrus.Fields{
		"from": cfg.Scan.From,
		"to":   to,
	}).Info("scan complete")
	return nil
}

func makeLogger(cfg LoggingConfig) (*logrus.Logger, error) {
	lg := logrus.New()
	switch cfg.Format {
	case "text", "":
		lg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		lg.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, errors.Errorf("unknown log format %q", cfg.Format)
	}

	levels := []logrus.Level{
		logrus.FatalLevel,
		logrus.ErrorLevel,
		logrus.WarnLevel,
		logrus.InfoLevel,
		logrus.DebugLevel,
		logrus.TraceLevel,
	}
	v := cfg.Verbosity
	if v < 0 {
		v = 0
	}
	if v >= len(levels) {
		v = len(levels) - 1
	}
	lg.SetLevel(levels[v])
	return lg, nil
}
