package main

import (
	"time"

	"github.com/urfave/cli"
)

var (
	flgDebug    = cli.BoolFlag{Name: "debug", Usage: "Enable debug logging"}
	flgName     = cli.StringFlag{Name: "name, n", Usage: "Name of remote peripheral"}
	flgAddr     = cli.StringFlag{Name: "addr, a", Usage: "Address of remote peripheral (MAC on Linux, UUID on OS X)"}
	flgCount    = cli.IntFlag{Name: "count, c", Usage: "Stop after this many measurements (0: run until interrupted)"}
	flgInterval = cli.DurationFlag{Name: "interval, i", Value: time.Second, Usage: "Interval between simulated measurements"}
	flgSeed     = cli.Int64Flag{Name: "seed", Usage: "Seed of the simulation (default: random)"}
	flgHex      = cli.BoolFlag{Name: "hex", Usage: "Payload is hex encoded instead of base64"}
)
