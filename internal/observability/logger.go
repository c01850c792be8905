package observability

import (
	"io"
	"os"
	"time"

	"github.com/danmuck/airlink/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger installs a console logger tagged with app as the global
// zerolog logger. AIRLINK_LOG_LEVEL still applies.
func InitLogger(app string) zerolog.Logger {
	return InitLoggerTo(os.Stderr, app)
}

func InitLoggerTo(out io.Writer, app string) zerolog.Logger {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Str("app", app).
		Logger()
	if lvl, ok := logging.ParseLevel(os.Getenv(logging.EnvLogLevel)); ok {
		logger = logger.Level(lvl)
	}
	log.Logger = logger
	return logger
}
