// Package log is evstore's structured logging facade.
//
// A Logger exposes leveled methods taking Field values. It is backed by
// log/slog through a bridge handler that renders entries with a Formatter
// (JSON or text) and writes them to one or more Outputs.
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("ingest"))
//	l.Info("batch accepted", log.Int("events", 12))
//
// ApplyConfig builds a logger from a declarative Config, including redacted
// keys and per-message sampling. RedirectStdLog sends the standard library
// logger (used by Pebble) through a Logger.
package log
