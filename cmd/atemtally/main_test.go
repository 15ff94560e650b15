package main

import (
	"testing"
	"time"

	"github.com/zsiec/atemtally/internal/tally"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("ATEMTALLY_TEST_STR", "switcher.local")
	t.Setenv("ATEMTALLY_TEST_INT", "9910")
	t.Setenv("ATEMTALLY_TEST_BAD_INT", "x")
	t.Setenv("ATEMTALLY_TEST_DUR", "250ms")

	if got := envOr("ATEMTALLY_TEST_STR", "x"); got != "switcher.local" {
		t.Errorf("envOr = %q", got)
	}
	if got := envOr("ATEMTALLY_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("envOr unset = %q", got)
	}
	if got := envInt("ATEMTALLY_TEST_INT", 0); got != 9910 {
		t.Errorf("envInt = %d, want 9910", got)
	}
	if got := envInt("ATEMTALLY_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("envInt bad = %d, want 7", got)
	}
	if got := envDuration("ATEMTALLY_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Errorf("envDuration = %v", got)
	}
}

func TestFormatFrame(t *testing.T) {
	t.Parallel()
	f := tally.Frame{Program: 1, Preview: 3, Tally: []uint8{0x01, 0x00, 0x02}}

	tests := []struct {
		input int
		want  string
	}{
		{0, "program=1 preview=3 1:P 3:p"},
		{1, "input 1: PROGRAM"},
		{2, "input 2: off"},
		{3, "input 3: preview"},
	}
	for _, tt := range tests {
		if got := formatFrame(f, tt.input); got != tt.want {
			t.Errorf("formatFrame(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestOpenRequiresAddress(t *testing.T) {
	t.Parallel()
	var sw switcherFlags
	if _, _, err := sw.open(nil); err == nil {
		t.Error("open without address succeeded")
	}
}
