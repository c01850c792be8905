package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/airlink/internal/admin"
	"github.com/danmuck/airlink/internal/netdev"
)

// runConfig is everything a subcommand needs after defaults, file and
// flags are merged.
type runConfig struct {
	Target   string
	Device   netdev.Options
	Admin    admin.Config
	Output   string
	Poll     time.Duration
	Limit    int
	LogLevel string
}

func defaultRunConfig() runConfig {
	return runConfig{
		Device: netdev.DefaultOptions(),
		Admin:  admin.DefaultConfig(),
		Output: "capture.pcap",
		Poll:   250 * time.Millisecond,
	}
}

type fileConfig struct {
	Target  string `toml:"target"`
	Session struct {
		QueueMax           int    `toml:"queue_max"`
		WriteWait          string `toml:"write_wait"`
		WriteWaitMS        int64  `toml:"write_wait_ms"`
		ConnectTimeout     string `toml:"connect_timeout"`
		ConnectTimeoutMS   int64  `toml:"connect_timeout_ms"`
		MaxConnectAttempts int    `toml:"max_connect_attempts"`
	} `toml:"session"`
	Admin struct {
		Addr        string   `toml:"addr"`
		Token       string   `toml:"token"`
		CorsOrigins []string `toml:"cors_origins"`
		OpTimeout   string   `toml:"op_timeout"`
		OpTimeoutMS int64    `toml:"op_timeout_ms"`
	} `toml:"admin"`
	Capture struct {
		Output string `toml:"output"`
		Poll   string `toml:"poll"`
		PollMS int64  `toml:"poll_ms"`
		Limit  int    `toml:"limit"`
	} `toml:"capture"`
	Log struct {
		Level string `toml:"level"`
	} `toml:"log"`
}

func loadRunConfig(path string) (runConfig, error) {
	cfg := defaultRunConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return runConfig{}, fmt.Errorf("load airlinkctl config: %w", err)
	}

	if meta.IsDefined("target") {
		cfg.Target = strings.TrimSpace(raw.Target)
	}

	if meta.IsDefined("session", "queue_max") {
		cfg.Device.Session.QueueMax = raw.Session.QueueMax
	}
	if err := overlayDuration(meta, &cfg.Device.Session.WriteWait, raw.Session.WriteWait, raw.Session.WriteWaitMS, "session", "write_wait"); err != nil {
		return runConfig{}, err
	}
	if err := overlayDuration(meta, &cfg.Device.Session.ConnectTimeout, raw.Session.ConnectTimeout, raw.Session.ConnectTimeoutMS, "session", "connect_timeout"); err != nil {
		return runConfig{}, err
	}
	if meta.IsDefined("session", "max_connect_attempts") {
		cfg.Device.MaxConnectAttempts = raw.Session.MaxConnectAttempts
	}

	if meta.IsDefined("admin", "addr") {
		cfg.Admin.Addr = strings.TrimSpace(raw.Admin.Addr)
	}
	if meta.IsDefined("admin", "token") {
		cfg.Admin.Token = strings.TrimSpace(raw.Admin.Token)
	}
	if meta.IsDefined("admin", "cors_origins") {
		cfg.Admin.CORSOrigins = raw.Admin.CorsOrigins
	}
	if err := overlayDuration(meta, &cfg.Admin.OpTimeout, raw.Admin.OpTimeout, raw.Admin.OpTimeoutMS, "admin", "op_timeout"); err != nil {
		return runConfig{}, err
	}

	if meta.IsDefined("capture", "output") {
		cfg.Output = strings.TrimSpace(raw.Capture.Output)
	}
	if err := overlayDuration(meta, &cfg.Poll, raw.Capture.Poll, raw.Capture.PollMS, "capture", "poll"); err != nil {
		return runConfig{}, err
	}
	if meta.IsDefined("capture", "limit") {
		cfg.Limit = raw.Capture.Limit
	}

	if meta.IsDefined("log", "level") {
		cfg.LogLevel = strings.TrimSpace(raw.Log.Level)
	}

	cfg.Device.Session = cfg.Device.Session.WithDefaults()
	return cfg, nil
}

// overlayDuration applies "<key>" as a duration string, then "<key>_ms" as
// milliseconds. The _ms form wins when both are set.
func overlayDuration(meta toml.MetaData, dst *time.Duration, text string, ms int64, table, key string) error {
	if meta.IsDefined(table, key) {
		d, err := time.ParseDuration(strings.TrimSpace(text))
		if err != nil {
			return fmt.Errorf("parse %s.%s: %w", table, key, err)
		}
		*dst = d
	}
	if meta.IsDefined(table, key+"_ms") {
		*dst = time.Duration(ms) * time.Millisecond
	}
	return nil
}
