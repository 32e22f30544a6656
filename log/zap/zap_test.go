package zap

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/unkn0wn-root/swcache"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerLevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := ZapLogger{L: zap.New(core)}

	l.Debug("cache hit", swcache.Fields{"key": "http://app.test/"})
	l.Info("install completed", swcache.Fields{"store": "post-cache", "assets": 7})
	l.Error("install failed", swcache.Fields{"err": errors.New("boom")})

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2 (debug filtered)", len(entries))
	}
	ctx := entries[0].ContextMap()
	if entries[0].Message != "install completed" || ctx["store"] != "post-cache" || ctx["assets"] != int64(7) {
		t.Fatalf("unexpected entry %+v", entries[0])
	}
	if entries[1].Level != zapcore.ErrorLevel || entries[1].ContextMap()["err"] != "boom" {
		t.Fatalf("unexpected error entry %+v", entries[1])
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	var buf bytes.Buffer
	l, err := New(&buf, "debug")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !l.L.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug should be enabled")
	}
	l.Debug("cache miss", swcache.Fields{"key": "k"})
	_ = l.Sync()
	if !strings.Contains(buf.String(), `"msg":"cache miss"`) || !strings.Contains(buf.String(), `"logger":"swcache"`) {
		t.Fatalf("output=%s", buf.String())
	}
}
