package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/danmuck/airlink/internal/admin"
	"github.com/danmuck/airlink/internal/capture"
	"github.com/danmuck/airlink/internal/logging"
	"github.com/danmuck/airlink/internal/netdev"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `usage: airlinkctl [-config path] [-target addr] <command> [args]

commands:
  info                   print address, channel, rate and monitor state
  set channel|rate <n>   change a device setting
  capture [-o file] [-n limit]
                         write received frames to a pcap file
  serve [-capture]       run the admin HTTP server
`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "airlinkctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("airlinkctl", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	configPath := fs.String("config", "", "path to airlinkctl config.toml")
	target := fs.String("target", "", "ip:port or serial:/dev/path[@baud]")
	level := fs.String("log-level", "", "trace|debug|info|warn|error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logging.ConfigureRuntime()

	cfg := defaultRunConfig()
	if *configPath != "" {
		loaded, err := loadRunConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		log.Info().Str("path", *configPath).Msg("loaded airlinkctl config")
	}
	if *target != "" {
		cfg.Target = *target
	}
	if *level != "" {
		cfg.LogLevel = *level
	}
	if cfg.LogLevel != "" {
		lvl, ok := logging.ParseLevel(cfg.LogLevel)
		if !ok {
			return fmt.Errorf("unknown log level %q", cfg.LogLevel)
		}
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.Target == "" {
		return errors.New("no target: pass -target or set target in the config")
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch rest[0] {
	case "info":
		return withDevice(ctx, cfg, func(dev netdev.Device) error {
			return runInfo(ctx, dev, cfg, stdout)
		})
	case "set":
		name, value, err := parseSet(rest[1:])
		if err != nil {
			return err
		}
		return withDevice(ctx, cfg, func(dev netdev.Device) error {
			return runSet(ctx, dev, cfg, name, value, stdout)
		})
	case "capture":
		cfs := flag.NewFlagSet("capture", flag.ContinueOnError)
		out := cfs.String("o", cfg.Output, "pcap output path")
		limit := cfs.Int("n", cfg.Limit, "stop after n frames (0 = unlimited)")
		if err := cfs.Parse(rest[1:]); err != nil {
			return err
		}
		cfg.Output, cfg.Limit = *out, *limit
		return withDevice(ctx, cfg, func(dev netdev.Device) error {
			return runCapture(ctx, dev, cfg, stdout)
		})
	case "serve":
		sfs := flag.NewFlagSet("serve", flag.ContinueOnError)
		withCapture := sfs.Bool("capture", false, "also capture frames to the configured output")
		if err := sfs.Parse(rest[1:]); err != nil {
			return err
		}
		return withDevice(ctx, cfg, func(dev netdev.Device) error {
			return runServe(ctx, dev, cfg, *withCapture)
		})
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", rest[0])
	}
}

func withDevice(ctx context.Context, cfg runConfig, fn func(netdev.Device) error) error {
	dev, err := netdev.Open(ctx, cfg.Target, cfg.Device)
	if err != nil {
		return err
	}
	closeDevice := func() {
		if err := dev.Close(); err != nil {
			log.Debug().Err(err).Msg("close device")
		}
	}
	// a read on a stream without deadlines only ends when the device closes
	stop := context.AfterFunc(ctx, closeDevice)
	defer func() {
		stop()
		closeDevice()
	}()
	return fn(dev)
}

func parseSet(args []string) (string, int, error) {
	if len(args) != 2 {
		return "", 0, errors.New("set: expected <channel|rate> <value>")
	}
	if args[0] != "channel" && args[0] != "rate" {
		return "", 0, fmt.Errorf("set: unknown setting %q", args[0])
	}
	v, err := strconv.Atoi(args[1])
	if err != nil {
		return "", 0, fmt.Errorf("set: bad value %q", args[1])
	}
	return args[0], v, nil
}

func opContext(ctx context.Context, cfg runConfig) (context.Context, context.CancelFunc) {
	d := cfg.Admin.OpTimeout
	if d <= 0 {
		d = admin.DefaultConfig().OpTimeout
	}
	return context.WithTimeout(ctx, d)
}

func runInfo(ctx context.Context, dev netdev.Device, cfg runConfig, stdout io.Writer) error {
	opCtx, cancel := opContext(ctx, cfg)
	defer cancel()

	mac, err := dev.MACAddress(opCtx)
	if err != nil {
		return fmt.Errorf("mac: %w", err)
	}
	channel, err := dev.Channel(opCtx)
	if err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	rate, err := dev.Rate(opCtx)
	if err != nil {
		return fmt.Errorf("rate: %w", err)
	}
	monitor, err := dev.MonitorState(opCtx)
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	fmt.Fprintf(stdout, "device:  %s\nmac:     %s\nchannel: %d\nrate:    %d\nmonitor: %d\n",
		dev.Descriptor(), mac, channel, rate, monitor)
	return nil
}

func runSet(ctx context.Context, dev netdev.Device, cfg runConfig, name string, value int, stdout io.Writer) error {
	opCtx, cancel := opContext(ctx, cfg)
	defer cancel()

	var err error
	switch name {
	case "channel":
		err = dev.SetChannel(opCtx, value)
	case "rate":
		err = dev.SetRate(opCtx, value)
	}
	if err != nil {
		return fmt.Errorf("set %s: %w", name, err)
	}
	fmt.Fprintf(stdout, "%s = %d\n", name, value)
	return nil
}

func runCapture(ctx context.Context, dev netdev.Device, cfg runConfig, stdout io.Writer) error {
	stats, err := captureTo(ctx, dev, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "captured %d frames (%d remote statuses, %d malformed) to %s\n", stats.Frames, stats.Statuses, stats.Malformed, cfg.Output)
	return nil
}

func captureTo(ctx context.Context, dev netdev.Device, cfg runConfig) (capture.Stats, error) {
	f, err := os.Create(cfg.Output)
	if err != nil {
		return capture.Stats{}, err
	}
	defer f.Close()

	w, err := capture.NewWriter(f)
	if err != nil {
		return capture.Stats{}, err
	}
	log.Info().Str("output", cfg.Output).Int("limit", cfg.Limit).Msg("capture started")
	stats, err := capture.Run(ctx, dev, w, capture.Options{Limit: cfg.Limit, Poll: cfg.Poll})
	if err != nil {
		return stats, fmt.Errorf("capture: %w", err)
	}
	return stats, nil
}

func runServe(ctx context.Context, dev netdev.Device, cfg runConfig, withCapture bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	captureDone := make(chan error, 1)
	if withCapture {
		if err := checkPollable(dev, cfg); err != nil {
			return err
		}
		go func() {
			_, err := captureTo(ctx, dev, cfg)
			captureDone <- err
		}()
	}

	srv := admin.New(dev, cfg.Admin)
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Run(ctx) }()

	for {
		select {
		case err := <-serveErr:
			return err
		case err := <-captureDone:
			if err == nil {
				log.Info().Msg("capture finished; admin server still running")
				continue
			}
			cancel()
			return errors.Join(err, waitTimeout(serveErr, 10*time.Second))
		}
	}
}

// pollable is implemented by devices that can bound a read by ctx.
type pollable interface {
	Pollable() bool
}

// checkPollable refuses to share a device between capture and admin calls
// unless capture reads can be bounded.
func checkPollable(dev netdev.Device, cfg runConfig) error {
	if cfg.Poll <= 0 {
		return errors.New("serve -capture needs a capture poll interval")
	}
	if p, ok := dev.(pollable); !ok || !p.Pollable() {
		return fmt.Errorf("serve -capture: %s has no read deadlines, capture would starve admin requests", dev.Descriptor())
	}
	return nil
}

func waitTimeout(ch <-chan error, d time.Duration) error {
	select {
	case err := <-ch:
		return err
	case <-time.After(d):
		return errors.New("admin server did not stop in time")
	}
}
