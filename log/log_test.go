package log

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLevel(t *testing.T) {
	defer SetLevel(LevelInfo)
	cases := []struct {
		in   string
		want zapcore.Level
	}{
		{LevelDebug, zapcore.DebugLevel},
		{LevelInfo, zapcore.InfoLevel},
		{LevelWarn, zapcore.WarnLevel},
		{LevelError, zapcore.ErrorLevel},
		{"unknown", zapcore.InfoLevel},
	}
	for _, c := range cases {
		SetLevel(c.in)
		assert.Equal(t, c.want, zapLevel.Level(), c.in)
	}
}

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	old := Default
	Default = NewZap(zap.New(core).Sugar())
	defer func() { Default = old }()

	With("run_id", "r1").Warnf("group %s skipped", "o1")
	Infof("plain")

	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "group o1 skipped", entries[0].Message)
		assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
		assert.Equal(t, "r1", entries[0].ContextMap()["run_id"])
		assert.Equal(t, "plain", entries[1].Message)
	}
}

func TestCallerPointsAtCallSite(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	old := Default
	Default = NewZap(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar())
	defer func() { Default = old }()

	Warnf("package helper")
	Default.Warnf("interface call")
	With("order_id", "o1").Errorf("child logger")

	entries := logs.All()
	if assert.Len(t, entries, 3) {
		for _, e := range entries {
			assert.True(t, e.Caller.Defined, e.Message)
			assert.Equal(t, "log_test.go", filepath.Base(e.Caller.File), e.Message)
		}
	}
}
