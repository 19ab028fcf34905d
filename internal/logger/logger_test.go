package logger

import (
	"testing"
	"time"
)

func TestFacilityDebugging(t *testing.T) {
	t.Setenv("WIZMINI_TRACE", "f0")
	l := New()

	msgs := 0
	l.AddHandler(LevelDebug, func(lv LogLevel, msg string) {
		msgs++
	})

	f0 := l.NewFacility("f0", "foo#0")
	f1 := l.NewFacility("f1", "foo#1")

	f0.Debugln("from f0")
	f1.Debugln("from f1")

	if msgs != 1 {
		t.Fatalf("expected 1 debug message, got %d", msgs)
	}
}

func TestEffectiveLevelDefaultsToInfo(t *testing.T) {
	t.Setenv("WIZMINI_TRACE", "")
	l := New()
	f := l.NewFacility("store", "path store")

	if f.IsEnabledFor("store", LevelDebug) {
		t.Error("debug should be disabled without tracing")
	}
	if !f.IsEnabledFor("store", LevelInfo) {
		t.Error("info should be enabled by default")
	}
}

func TestEffectiveLevelAll(t *testing.T) {
	t.Setenv("WIZMINI_TRACE", "all:debug")
	l := New()
	f := l.NewFacility("search", "search worker")

	if !f.IsEnabledFor("search", LevelDebug) {
		t.Error("debug should be enabled under all:debug")
	}
}

func TestEffectiveLevelNegated(t *testing.T) {
	t.Setenv("WIZMINI_TRACE", "all:debug,!search")
	l := New()
	f := l.NewFacility("search", "search worker")

	if f.IsEnabledFor("search", LevelDebug) {
		t.Error("negated facility should not inherit all:debug")
	}
	if !f.IsEnabledFor("search", LevelInfo) {
		t.Error("negated facility should still log info")
	}
}

func TestSetDebugOverride(t *testing.T) {
	t.Setenv("WIZMINI_TRACE", "")
	l := New()
	l.SetDebug("coordinator", true)
	if !l.IsEnabledFor("coordinator", LevelDebug) {
		t.Error("SetDebug(true) should enable debug logging")
	}
	l.SetDebug("coordinator", false)
	if l.IsEnabledFor("coordinator", LevelDebug) {
		t.Error("SetDebug(false) should disable debug logging again")
	}
}

func TestRecorder(t *testing.T) {
	t.Setenv("WIZMINI_TRACE", "")
	l := New()
	r := NewRecorder(l, LevelWarn, 3)

	for i := 0; i < 5; i++ {
		l.Infoln("info, ignored by recorder")
		l.Warnln("warn", i)
	}

	lines := r.Since(time.Time{})
	if len(lines) != 3 {
		t.Fatalf("expected 3 retained lines, got %d", len(lines))
	}
	for _, line := range lines {
		if line.Level != LevelWarn {
			t.Errorf("unexpected level %v in recorder", line.Level)
		}
	}
}
