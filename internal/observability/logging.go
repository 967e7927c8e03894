package observability

import (
	"os"
	"sync"

	"github.com/bombsimon/logrusr/v3"
	"github.com/gobuffalo/pop/v6"
	"github.com/gobuffalo/pop/v6/logging"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/funcsea/appbackend/internal/conf"
)

// LOG_SQL values.
const (
	LOG_SQL_ALL       = "all"
	LOG_SQL_NONE      = "none"
	LOG_SQL_STATEMENT = "statement"
)

var loggingOnce sync.Once

// fieldsHook adds LOG_FIELDS to entries that do not already carry the key.
type fieldsHook logrus.Fields

func (h fieldsHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h fieldsHook) Fire(e *logrus.Entry) error {
	for k, v := range h {
		if _, ok := e.Data[k]; !ok {
			e.Data[k] = v
		}
	}
	return nil
}

// ConfigureLogging sets up the standard logrus logger once per process.
func ConfigureLogging(config *conf.LoggingConfig) error {
	var err error
	loggingOnce.Do(func() {
		err = configureLogger(logrus.StandardLogger(), config)
		if err != nil {
			return
		}
		pop.SetLogger(popLogger(config.SQL))
		otel.SetLogger(logrusr.New(logrus.WithField("component", "otel")))
	})
	return err
}

func configureLogger(l *logrus.Logger, config *conf.LoggingConfig) error {
	l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: config.TSFormat})

	if config.Level != "" {
		level, err := logrus.ParseLevel(config.Level)
		if err != nil {
			return err
		}
		l.SetLevel(level)
	}

	if config.File != "" {
		f, err := os.OpenFile(config.File, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0640) //#nosec G302
		if err != nil {
			return err
		}
		l.SetOutput(f)
	}

	if len(config.Fields) > 0 {
		l.AddHook(fieldsHook(config.Fields))
	}
	return nil
}

// popLogger routes pop's messages into logrus. Statements are logged only
// when LOG_SQL asks for them, and their arguments only for "all".
func popLogger(mode string) func(logging.Level, string, ...interface{}) {
	withStatements := mode == LOG_SQL_STATEMENT || mode == LOG_SQL_ALL
	withArgs := mode == LOG_SQL_ALL

	return func(lvl logging.Level, msg string, args ...interface{}) {
		if lvl == logging.SQL {
			if !withStatements {
				return
			}
			entry := logrus.WithField("component", "sql")
			if withArgs && len(args) > 0 {
				entry = entry.WithField("args", args)
			}
			entry.Info(msg)
			return
		}

		entry := logrus.WithField("component", "pop")
		if len(args) > 0 {
			entry = entry.WithField("args", args)
		}
		switch lvl {
		case logging.Debug:
			entry.Debug(msg)
		case logging.Warn:
			entry.Warn(msg)
		case logging.Error:
			entry.Error(msg)
		default:
			entry.Info(msg)
		}
	}
}
