package logging

import (
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const consoleTimeLayout = "2006-01-02 15:04:05"

// NewLogger writes human-readable progress lines to stdout and JSON lines to
// a rotating file under logDir.
func NewLogger(logDir, level string) (*zap.Logger, error) {
	return newLogger(os.Stdout, logDir, level)
}

func newLogger(console io.Writer, logDir, level string) (*zap.Logger, error) {
	lvl := zap.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	file := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(logDir, "srvstatus.log"),
		MaxSize:    10, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	})

	jsonCfg := zap.NewProductionEncoderConfig()
	jsonCfg.TimeKey = "ts"

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout(consoleTimeLayout)
	consoleCfg.CallerKey = ""

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.AddSync(console), lvl),
		zapcore.NewCore(zapcore.NewJSONEncoder(jsonCfg), file, lvl),
	)
	return zap.New(core), nil
}
