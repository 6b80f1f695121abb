package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// CommonFlags returns the base set of CLI flags shared across commands.

func CommonFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "datadir",
			Usage: "Data directory for the eligibility ledger database",
			Value: "~/.cyledger",
		},
		cli.StringFlag{
			Name:  "network",
			Usage: "Network rules to use (flare|arbitrum-one|fake)",
			Value: "flare",
		},
		cli.StringFlag{
			Name:  "epochs",
			Usage: "YAML file overriding the built-in reward epoch schedule",
		},
		cli.StringFlag{
			Name:  "log.format",
			Usage: "Log output format (text|json)",
			Value: "text",
		},
		cli.IntFlag{
			Name:  "log.verbosity",
			Usage: "Logging verbosity (0=fatal,1=error,2=warn,3=info,4=debug,5=trace)",
			Value: 3,
		},
		cli.IntFlag{
			Name:  "cache",
			Usage: "Megabytes of memory allocated to database caching",
			Value: 256,
		},
	}
}
