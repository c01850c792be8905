package config

import (
	"fmt"
	"os"
	"strings"
)

// Kinds lists the config kinds Template knows.
var Kinds = []string{"airlinkctl"}

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "airlinkctl", "client":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const clientTemplate = `target = "127.0.0.1:4444"

[session]
queue_max = 666
write_wait = "100ms"
connect_timeout = "5s"
max_connect_attempts = 3

[admin]
addr = "127.0.0.1:7070"
token = ""
cors_origins = ["http://localhost:3000"]
op_timeout = "2s"

[capture]
output = "capture.pcap"
poll = "250ms"
limit = 0

[log]
level = "info"
`
