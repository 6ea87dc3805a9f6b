// Package logging configures the operational log/slog loggers used across
// apimock.
//
// Every component receives a *slog.Logger and defaults to Nop when none is
// given. Call records are not written here; they go to package requestlog.
//
//	log := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatJSON,
//	})
//	log.Info("server started", "addr", ":8080")
//	log.Error("reload failed", "error", err)
package logging
