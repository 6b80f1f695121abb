package flags

import (
	"time"

	"gopkg.in/urfave/cli.v1"
)

// RPCFlags covers the connection to the chain node.

func RPCFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "rpc.url",
			Usage: "JSON-RPC endpoint of the chain node",
			Value: "http://127.0.0.1:8545",
		},
		cli.DurationFlag{
			Name:  "rpc.timeout",
			Usage: "Per-call JSON-RPC request timeout",
			Value: 30 * time.Second,
		},
	}
}
