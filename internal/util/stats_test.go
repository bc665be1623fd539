package util

import (
	"strings"
	"testing"
)

// TestFormatBytesFixedWidth verifies that formatted byte counts are always 8
// characters wide and pick the expected unit.
func TestFormatBytesFixedWidth(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0, " 0.0   B"},
		{99, "99.0   B"},
		{1536, " 1.5 KiB"},
		{100 * 1024, " 0.1 MiB"},
		{98.9 * 1024 * 1024 * 1024, "98.9 GiB"},
	}

	for _, tc := range testCases {
		got := formatBytes(tc.in)
		if got != tc.want {
			t.Errorf("formatBytes(%v) = %q, want %q", tc.in, got, tc.want)
		}
		if len(got) != 8 {
			t.Errorf("formatBytes(%v) has width %d, want 8", tc.in, len(got))
		}
	}
}

// TestFormatStatsIncludesCounters verifies the report line reflects counters.
func TestFormatStatsIncludesCounters(t *testing.T) {
	before := Stats.CandidatesSent.Load()
	Stats.AddCandidateSent()

	line := formatStats(0, 3)
	if !strings.Contains(line, "Relayed: 3") {
		t.Errorf("missing relayed count in %q", line)
	}
	if Stats.CandidatesSent.Load() != before+1 {
		t.Errorf("CandidatesSent not incremented")
	}
}

// TestSetLevel verifies level names are accepted case-insensitively.
func TestSetLevel(t *testing.T) {
	for _, name := range []string{"trace", "DEBUG", " info ", "warn", "error", ""} {
		if err := SetLevel(name); err != nil {
			t.Errorf("SetLevel(%q) failed: %v", name, err)
		}
	}
	if err := SetLevel("loud"); err == nil {
		t.Error("SetLevel(\"loud\") succeeded, want error")
	}
	_ = SetLevel("info")
}
