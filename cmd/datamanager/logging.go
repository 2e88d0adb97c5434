package main

import (
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type logFlags struct {
	level       string
	development bool
	encoding    string
}

func (f *logFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.level, "log.level", "info", "the minimum log level to log")
	fs.BoolVar(&f.development, "log.development", false, "if true, set logging to development mode")
	fs.StringVar(&f.encoding, "log.encoding", "console", "configures log encoding. can either be 'console' or 'json'")
}

// newLogger builds the process logger from the log flags.
func (f *logFlags) newLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(f.level)
	if err != nil {
		return nil, err
	}
	return zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       f.development,
		DisableCaller:     !f.development,
		DisableStacktrace: !f.development,
		Encoding:          f.encoding,
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}.Build()
}
