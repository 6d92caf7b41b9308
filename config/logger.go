package config

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel parses a zap level name.
func ParseLevel(s string) (zapcore.Level, error) {
	return zapcore.ParseLevel(s)
}

// BuildLogger creates the logger described by the log section.
// The json format uses zap's production encoder, console the development one.
func (c Config) BuildLogger() (*zap.Logger, error) {
	level, err := ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	if c.Log.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
		zc.Sampling = nil
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if c.Log.Output != "" {
		zc.OutputPaths = []string{c.Log.Output}
		zc.ErrorOutputPaths = []string{c.Log.Output}
	}

	return zc.Build(zap.Fields(zap.String("component", "modelrt")))
}
