package cli

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger writes to w: a console encoder in development, JSON in
// production. Warnings and above unless verbose.
func newLogger(w io.Writer, production, verbose bool) *zap.Logger {
	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	if production {
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())

		return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level))
	}

	enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())

	return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), level), zap.Development(), zap.AddCaller())
}
