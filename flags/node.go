package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// ScanFlags holds knobs of the block-range scan (start, end, batching).

func ScanFlags() []cli.Flag {
	return []cli.Flag{
		cli.Uint64Flag{
			Name:  "scan.from",
			Usage: "First block of the scan range",
		},
		cli.Uint64Flag{
			Name:  "scan.to",
			Usage: "Last block of the scan range (0 = current head)",
		},
		cli.Uint64Flag{
			Name:  "scan.batch",
			Usage: "Number of blocks per log filter query",
			Value: 2048,
		},
	}
}
