package logrus

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/unkn0wn-root/swcache"
)

func TestLogrusLoggerFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.InfoLevel)
	l := LogrusLogger{E: logrus.NewEntry(base)}

	l.Debug("cache miss", swcache.Fields{"key": "k"})
	l.Info("install started", swcache.Fields{"store": "post-cache", "assets": 7})
	if len(hook.Entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(hook.Entries))
	}
	e := hook.LastEntry()
	if e.Message != "install started" || e.Data["store"] != "post-cache" || e.Data["assets"] != 7 {
		t.Fatalf("unexpected entry %+v", e)
	}

	boom := errors.New("boom")
	l.Error("install failed", swcache.Fields{"err": boom, "store": "post-cache"})
	e = hook.LastEntry()
	if e.Level != logrus.ErrorLevel || e.Data[logrus.ErrorKey] != boom || e.Data["store"] != "post-cache" {
		t.Fatalf("unexpected error entry %+v", e)
	}
}

func TestNewParsesLevel(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	var buf bytes.Buffer
	l, err := New(&buf, "warn")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.E.Logger.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level=%s", l.E.Logger.GetLevel())
	}
	l.Info("dropped", nil)
	l.Warn("store lookup failed", swcache.Fields{"key": "k"})
	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "component=swcache") {
		t.Fatalf("output=%q", out)
	}
}
