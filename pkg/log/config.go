package log

import (
	"fmt"
	stdlog "log"
	"log/slog"
	"strings"
)

// Config declares a logger.
type Config struct {
	Level   string         `json:"level" yaml:"level"`
	Format  string         `json:"format" yaml:"format"`
	Outputs []OutputConfig `json:"outputs" yaml:"outputs"`
	// Redact replaces the values of these keys with [REDACTED].
	Redact []string `json:"redact" yaml:"redact"`
	// Sampling keeps the first Initial entries per message, then every Thereafter-th.
	Sampling *SamplingConfig `json:"sampling" yaml:"sampling"`
}

type OutputConfig struct {
	Type string `json:"type" yaml:"type"` // console|stdout|file|null
	Path string `json:"path" yaml:"path"`
}

type SamplingConfig struct {
	Initial    int `json:"initial" yaml:"initial"`
	Thereafter int `json:"thereafter" yaml:"thereafter"`
}

// ApplyConfig builds a Logger from cfg.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, err
	}

	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = &TextFormatter{}
	case "json":
		formatter = &JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	opts := []LoggerOption{WithLevel(level), WithFormatter(formatter)}
	for _, oc := range cfg.Outputs {
		switch strings.ToLower(oc.Type) {
		case "", "console":
			opts = append(opts, WithOutput(NewConsoleOutput()))
		case "stdout":
			opts = append(opts, WithOutput(&ConsoleOutput{UseStdout: true}))
		case "file":
			fo, err := NewFileOutput(oc.Path)
			if err != nil {
				return nil, fmt.Errorf("log: open %s: %w", oc.Path, err)
			}
			opts = append(opts, WithOutput(fo))
		case "null":
			opts = append(opts, WithOutput(NullOutput{}))
		default:
			return nil, fmt.Errorf("unknown log output %q", oc.Type)
		}
	}

	l := NewLogger(opts...).(*BaseLogger)
	h := newBridgeHandler(l).withRedactions(cfg.Redact)
	if cfg.Sampling != nil {
		h = h.withSampler(cfg.Sampling.Initial, cfg.Sampling.Thereafter)
	}
	l.slogLogger = slog.New(h)
	return l, nil
}

// stdWriter adapts the standard library logger to a Logger.
type stdWriter struct {
	logger Logger
}

func (w stdWriter) Write(p []byte) (int, error) {
	w.logger.Info(strings.TrimRight(string(p), "\n"), Str("source", "stdlib"))
	return len(p), nil
}

// ToStdLogger returns a *log.Logger that writes through logger at info level.
func ToStdLogger(logger Logger) *stdlog.Logger {
	return stdlog.New(stdWriter{logger: logger}, "", 0)
}

// RedirectStdLog routes the global standard library logger through logger.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	stdlog.SetOutput(stdWriter{logger: logger})
}
