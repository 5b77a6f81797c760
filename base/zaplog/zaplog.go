package zaplog

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the process logger, or a no-op logger if none has been set.
func Logger() *zap.Logger {
	l := logger.Load()
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func SetLogger(l *zap.Logger) { logger.Store(l) }

func encodeCaller(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
	p := caller.TrimmedPath()
	if len(p) > 30 {
		p = "..." + p[len(p)-27:]
	}
	enc.AppendString(fmt.Sprintf("%30s", p))
}

// New builds the development-style console logger used by all commands.
func New(verbose bool) (*zap.Logger, error) {
	c := zap.NewDevelopmentConfig()
	c.DisableStacktrace = true
	c.EncoderConfig.EncodeCaller = encodeCaller
	if !verbose {
		c.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return c.Build()
}
