// Package log 提供全链路使用的分级日志，底层为 zap。
package log

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 日志级别
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Logger 是全链路使用的日志接口，可替换为任意实现。
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	// With 返回附带固定字段的子 Logger（如 run_id、order_id）
	With(args ...any) Logger
}

var zapLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:        "ts",
	LevelKey:       "lvl",
	NameKey:        "name",
	CallerKey:      "caller",
	MessageKey:     "message",
	StacktraceKey:  "stacktrace",
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.CapitalLevelEncoder,
	EncodeTime:     zapcore.RFC3339TimeEncoder,
	EncodeDuration: zapcore.SecondsDurationEncoder,
	EncodeCaller:   zapcore.ShortCallerEncoder,
}

// Default 默认输出到 stderr，stdout 留给命令结果。
var Default Logger = NewZap(zap.New(
	zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		zapLevel,
	),
	zap.AddCaller(),
	zap.AddCallerSkip(1),
).Sugar())

// zapLogger 适配 zap.SugaredLogger。
// pkg 多跳过一层调用栈，供包级函数使用，caller 指向真正的调用方。
type zapLogger struct {
	s   *zap.SugaredLogger
	pkg *zap.SugaredLogger
}

// NewZap 包装一个 zap SugaredLogger
func NewZap(s *zap.SugaredLogger) Logger {
	return &zapLogger{s: s, pkg: s.WithOptions(zap.AddCallerSkip(1))}
}

func (l *zapLogger) Debugf(format string, args ...any) { l.s.Debugf(format, args...) }
func (l *zapLogger) Infof(format string, args ...any)  { l.s.Infof(format, args...) }
func (l *zapLogger) Warnf(format string, args ...any)  { l.s.Warnf(format, args...) }
func (l *zapLogger) Errorf(format string, args ...any) { l.s.Errorf(format, args...) }
func (l *zapLogger) With(args ...any) Logger           { return NewZap(l.s.With(args...)) }

// SetLevel 设置日志级别；无法识别时回退到 info。
func SetLevel(level string) {
	switch level {
	case LevelDebug:
		zapLevel.SetLevel(zapcore.DebugLevel)
	case LevelInfo:
		zapLevel.SetLevel(zapcore.InfoLevel)
	case LevelWarn:
		zapLevel.SetLevel(zapcore.WarnLevel)
	case LevelError:
		zapLevel.SetLevel(zapcore.ErrorLevel)
	default:
		zapLevel.SetLevel(zapcore.InfoLevel)
	}
}

// helper 返回包级函数使用的 Logger
func helper() Logger {
	if z, ok := Default.(*zapLogger); ok {
		return &zapLogger{s: z.pkg, pkg: z.pkg}
	}
	return Default
}

// Debugf 以 DEBUG 级别输出
func Debugf(format string, args ...any) { helper().Debugf(format, args...) }

// Infof 以 INFO 级别输出
func Infof(format string, args ...any) { helper().Infof(format, args...) }

// Warnf 以 WARN 级别输出
func Warnf(format string, args ...any) { helper().Warnf(format, args...) }

// Errorf 以 ERROR 级别输出
func Errorf(format string, args ...any) { helper().Errorf(format, args...) }

// With 基于 Default 创建子 Logger
func With(args ...any) Logger { return Default.With(args...) }
