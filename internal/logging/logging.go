// Package logging wraps go.uber.org/zap into the dev server's logger,
// replacing ad hoc fmt.Printf banners with structured logging while
// keeping the same moments worth announcing: server ready, proxy/static
// hits, HMR updates, optimizer runs.
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the server's root logger. In development mode it uses zap's
// human-readable console encoder with color; DEBUG=1 additionally enables
// debug-level output for request/HMR/optimizer timing logs.
func New(mode string) (*zap.Logger, error) {
	debug := os.Getenv("DEBUG") != ""

	var cfg zap.Config
	if mode == "production" && !debug {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return cfg.Build()
}

// Nop returns a logger that discards everything, for tests.
func Nop() *zap.Logger { return zap.NewNop() }
