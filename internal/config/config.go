package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/airlink/internal/netdev"
	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("config: invalid")

// ClientConfig is the on-disk shape of an airlinkctl config. Durations are
// Go duration strings; each also has a "<key>_ms" integer form that wins
// when both are set.
type ClientConfig struct {
	Target  string        `toml:"target"`
	Session SessionConfig `toml:"session"`
	Admin   AdminConfig   `toml:"admin"`
	Capture CaptureConfig `toml:"capture"`
	Log     LogConfig     `toml:"log"`
}

type SessionConfig struct {
	QueueMax           int    `toml:"queue_max"`
	WriteWait          string `toml:"write_wait"`
	WriteWaitMS        *int64 `toml:"write_wait_ms"`
	ConnectTimeout     string `toml:"connect_timeout"`
	ConnectTimeoutMS   *int64 `toml:"connect_timeout_ms"`
	MaxConnectAttempts int    `toml:"max_connect_attempts"`
}

type AdminConfig struct {
	Addr        string   `toml:"addr"`
	Token       string   `toml:"token"`
	CorsOrigins []string `toml:"cors_origins"`
	OpTimeout   string   `toml:"op_timeout"`
	OpTimeoutMS *int64   `toml:"op_timeout_ms"`
}

type CaptureConfig struct {
	Output string `toml:"output"`
	Poll   string `toml:"poll"`
	PollMS *int64 `toml:"poll_ms"`
	Limit  int    `toml:"limit"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// LoadClientConfig reads path strictly: unknown keys are errors.
func LoadClientConfig(path string) (ClientConfig, error) {
	var cfg ClientConfig
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if cfg.Admin.Addr == "" {
		cfg.Admin.Addr = "127.0.0.1:7070"
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("config parse failed (%s): %s", path, strict.String())
		}
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if strings.TrimSpace(cfg.Target) == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidConfig)
	}
	if _, err := netdev.ParseTarget(cfg.Target); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.Session.QueueMax < 0 {
		return fmt.Errorf("%w: session.queue_max must be >= 0", ErrInvalidConfig)
	}
	if cfg.Session.MaxConnectAttempts < 0 {
		return fmt.Errorf("%w: session.max_connect_attempts must be >= 0", ErrInvalidConfig)
	}
	if cfg.Capture.Limit < 0 {
		return fmt.Errorf("%w: capture.limit must be >= 0", ErrInvalidConfig)
	}
	for key, d := range cfg.durations() {
		if _, err := d.resolve(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
		}
	}
	return nil
}

type durationField struct {
	text string
	ms   *int64
}

func (f durationField) resolve() (time.Duration, error) {
	d, err := parseDuration(f.text)
	if err != nil || f.ms == nil {
		return d, err
	}
	if *f.ms < 0 {
		return 0, fmt.Errorf("negative duration %dms", *f.ms)
	}
	return time.Duration(*f.ms) * time.Millisecond, nil
}

func (c ClientConfig) durations() map[string]durationField {
	return map[string]durationField{
		"session.write_wait":      {c.Session.WriteWait, c.Session.WriteWaitMS},
		"session.connect_timeout": {c.Session.ConnectTimeout, c.Session.ConnectTimeoutMS},
		"admin.op_timeout":        {c.Admin.OpTimeout, c.Admin.OpTimeoutMS},
		"capture.poll":            {c.Capture.Poll, c.Capture.PollMS},
	}
}

// DeviceOptions maps the session table onto netdev options, keeping
// defaults for unset fields.
func (c ClientConfig) DeviceOptions() netdev.Options {
	opts := netdev.DefaultOptions()
	if c.Session.QueueMax > 0 {
		opts.Session.QueueMax = c.Session.QueueMax
	}
	if d, _ := c.durations()["session.write_wait"].resolve(); d > 0 {
		opts.Session.WriteWait = d
	}
	if d, _ := c.durations()["session.connect_timeout"].resolve(); d > 0 {
		opts.Session.ConnectTimeout = d
	}
	if c.Session.MaxConnectAttempts > 0 {
		opts.MaxConnectAttempts = c.Session.MaxConnectAttempts
	}
	opts.Session = opts.Session.WithDefaults()
	return opts
}

func (c ClientConfig) CapturePoll() time.Duration {
	d, _ := c.durations()["capture.poll"].resolve()
	return d
}

func (c ClientConfig) AdminOpTimeout() time.Duration {
	d, _ := c.durations()["admin.op_timeout"].resolve()
	return d
}

func parseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", raw)
	}
	return d, nil
}
