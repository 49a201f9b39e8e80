package logging

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger from config. Records go to stderr unless
// console output is disabled, and additionally to the rotating file named
// by config.Filename when one is set.
func NewLogger(config *Config) (*zap.Logger, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}

	encoder, level, err := constructEncoderAndLevel(config)
	if err != nil {
		return nil, fmt.Errorf("constructing log encoder and level: %w", err)
	}

	var cores []zapcore.Core
	if config.Filename != "" {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(&config.Logger), level))
	}
	if !config.DisableConsoleOutput {
		cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func constructEncoderAndLevel(config *Config) (zapcore.Encoder, zapcore.Level, error) {
	zapLevel, err := config.toZapCoreLevel()
	if err != nil {
		return nil, zapLevel, err
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	if config.Debug {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	if config.EncodeTimeAsRFC3339Nano {
		encoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	}

	if config.Debug {
		return zapcore.NewConsoleEncoder(encoderConfig), zapLevel, nil
	}
	return zapcore.NewJSONEncoder(encoderConfig), zapLevel, nil
}

// NewTestLogger returns a debug-level logrus-backed logger for tests.
func NewTestLogger() Interface {
	l := logrus.New()
	l.SetLevel(logrus.DebugLevel)
	return ForLogrus(logrus.NewEntry(l))
}
