package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/freedmand/heartbeat"
)

var logger = heartbeat.NewDefaultLogger(false)

func main() {
	app := cli.NewApp()

	app.Name = "hrmonitor"
	app.Usage = "Receive and decode Bluetooth LE heart rate measurements"
	app.Version = "0.1.0"
	app.Action = cli.ShowAppHelp
	app.Flags = []cli.Flag{flgDebug}
	app.Before = func(c *cli.Context) error {
		if c.GlobalBool("debug") {
			logger = heartbeat.NewDefaultLogger(true)
		}
		return nil
	}

	app.Commands = []cli.Command{
		{
			Name:    "monitor",
			Aliases: []string{"m"},
			Usage:   "Connect to a heart rate sensor and log its measurements",
			Action:  cmdMonitor,
			Flags:   []cli.Flag{flgName, flgAddr, flgCount},
		},
		{
			Name:    "simulate",
			Aliases: []string{"s"},
			Usage:   "Log measurements of a simulated heart rate sensor",
			Action:  cmdSimulate,
			Flags:   []cli.Flag{flgInterval, flgSeed, flgCount},
		},
		{
			Name:      "decode",
			Aliases:   []string{"d"},
			Usage:     "Decode a single heart rate measurement payload",
			ArgsUsage: "<payload>",
			Action:    cmdDecode,
			Flags:     []cli.Flag{flgHex},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatalf("%s", err)
	}
}

func cmdMonitor(c *cli.Context) error {
	m, err := heartbeat.New(
		heartbeat.WithDeviceName(c.String("name")),
		heartbeat.WithDeviceID(c.String("addr")),
		heartbeat.WithLogger(logger),
	)
	if err != nil {
		return errors.Wrap(err, "failed to initialize heart rate monitor")
	}

	stateChan := make(chan heartbeat.ConnectionStatus)
	m.SetStateChangeChannel(stateChan)

	go func() {
		for st := range stateChan {
			logger.Infof("state change: %v", st)
			if st.Error != nil {
				logger.Warnf("connection error: %s", st.Error)
			}
			if st.State == heartbeat.StateConnected {
				logger.Infof("got device information: %#v", m.DeviceInfo())
			}
		}
	}()

	return follow(m, m, c.Int("count"))
}

func cmdSimulate(c *cli.Context) error {
	options := []func(*heartbeat.Simulator){
		heartbeat.WithInterval(c.Duration("interval")),
		heartbeat.WithSimulatorLogger(logger),
	}
	if c.IsSet("seed") {
		options = append(options, heartbeat.WithSeed(c.Int64("seed")))
	}

	sim := heartbeat.NewSimulator(options...)
	return follow(sim, sim, c.Int("count"))
}

func cmdDecode(c *cli.Context) error {
	payload := c.Args().First()
	if payload == "" {
		return errors.New("missing payload")
	}

	var (
		reading *heartbeat.Reading
		err     error
	)
	if c.Bool("hex") {
		data, decErr := hex.DecodeString(payload)
		if decErr != nil {
			return errors.Wrap(decErr, "failed to decode hex payload")
		}
		reading, err = heartbeat.Decode(data)
	} else {
		reading, err = heartbeat.ParseBase64(payload)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to decode payload `%s`", payload)
	}

	fmt.Printf("%s (%s)\n", reading, heartbeat.ZoneFor(reading.HeartRate))
	return nil
}

// follow logs measurements of src until interrupted or until count measurements have been received
func follow(src heartbeat.Source, closer io.Closer, count int) error {
	measurements := make(chan heartbeat.Measurement, 16)

	sub, err := src.Subscribe(func(m heartbeat.Measurement, err error) {
		if err != nil {
			logger.Errorf("error receiving measurement: %s", err)
			return
		}
		select {
		case measurements <- m:
		default:
			logger.Warnf("dropping measurement, consumer too slow")
		}
	})
	if err != nil {
		return errors.Wrap(err, "failed to subscribe to heart rate measurements")
	}

	sigChan := make(chan os.Signal, 32)
	signal.Notify(sigChan, syscall.SIGTERM)
	signal.Notify(sigChan, os.Interrupt)

	received := 0
loop:
	for count <= 0 || received < count {
		select {
		case <-sigChan:
			logger.Infof("got signal, terminating connection to device")
			break loop
		case m := <-measurements:
			received++
			logger.Infof("got data: %s", &m)
		}
	}

	if err := sub.Unsubscribe(); err != nil {
		logger.Errorf("failed to unsubscribe: %s", err)
	}
	if err := closer.Close(); err != nil {
		return errors.Wrap(err, "failed to close device")
	}

	return nil
}
