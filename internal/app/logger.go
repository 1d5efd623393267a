package app

import (
	"io"

	"courier-dispatch/internal/config"
	"courier-dispatch/internal/logx"
)

// NewLogger returns the service JSON logger at the configured level.
func NewLogger(cfg *config.Config, out io.Writer) logx.Logger {
	return logx.NewJSON(out, cfg.LogLevel).With(logx.String("service", "service-dispatch"))
}
