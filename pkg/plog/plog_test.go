package plog

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetLevel(slog.LevelInfo) })

	SetLevel(slog.LevelDebug)
	Debug("debug line")
	Info("info line")
	Notice("notice line")
	out := buf.String()
	for _, want := range []string{"debug line", "info line", "notice line"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}

	buf.Reset()
	SetLevel(slog.LevelWarn)
	Debug("hidden debug")
	Info("hidden info")
	Warn("visible warn")
	out = buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("suppressed levels leaked:\n%s", out)
	}
	if !strings.Contains(out, "visible warn") {
		t.Errorf("warn missing:\n%s", out)
	}
}

func TestNoticeLevelLabel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetLevel(slog.LevelInfo) })

	Notice("labeled")
	if !strings.Contains(buf.String(), "NOTICE") {
		t.Errorf("notice records must carry the NOTICE label:\n%s", buf.String())
	}
}

func TestQuietMode(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetQuiet(true)
	t.Cleanup(func() { SetQuiet(false) })

	Info("quiet info")
	Notice("quiet notice")
	Warn("loud warn")

	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Errorf("quiet mode leaked info/notice:\n%s", out)
	}
	if !strings.Contains(out, "loud warn") {
		t.Errorf("warnings must survive quiet mode:\n%s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"Info", slog.LevelInfo, false},
		{"notice", LevelNotice, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tc.in, got, err)
		}
	}
}
