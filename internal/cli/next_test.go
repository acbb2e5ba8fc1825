package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/RealZimboGuy/flowtrigger/internal/cronexpr"
)

func TestNext_WeekdayAcrossDST(t *testing.T) {
	var out bytes.Buffer
	opts := &NextOptions{Timezone: "America/New_York", Count: 2, After: "2024-03-09T12:00:00Z"}

	if err := runNext(&out, "0 9 * * MON-FRI", opts, time.Time{}); err != nil {
		t.Fatalf("runNext() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), out.String())
	}
	if lines[0] != "2024-03-11T13:00:00Z  2024-03-11 09:00 EDT" {
		t.Errorf("unexpected first occurrence %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "2024-03-12T13:00:00Z") {
		t.Errorf("unexpected second occurrence %q", lines[1])
	}
}

func TestNext_JSON(t *testing.T) {
	var out bytes.Buffer
	opts := &NextOptions{Timezone: "UTC", Count: 3, JSON: true}
	now := time.Date(2024, 3, 1, 9, 1, 0, 0, time.UTC)

	if err := runNext(&out, "*/15 * * * *", opts, now); err != nil {
		t.Fatalf("runNext() error = %v", err)
	}
	var got []occurrence
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON output: %v", err)
	}
	if len(got) != 3 || !got[0].UTC.Equal(time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)) {
		t.Errorf("unexpected occurrences %+v", got)
	}
}

func TestNext_Errors(t *testing.T) {
	cases := []struct {
		name string
		expr string
		opts NextOptions
		want error
	}{
		{"bad expression", "61 * * * *", NextOptions{Timezone: "UTC", Count: 1}, cronexpr.ErrInvalidExpression},
		{"bad timezone", "* * * * *", NextOptions{Timezone: "Mars/Olympus", Count: 1}, cronexpr.ErrInvalidTimezone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := runNext(&bytes.Buffer{}, tc.expr, &tc.opts, time.Now())
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if err := runNext(&bytes.Buffer{}, "* * * * *", &NextOptions{Timezone: "UTC", Count: 0}, time.Now()); err == nil {
		t.Error("expected error for --count 0")
	}
	if err := runNext(&bytes.Buffer{}, "* * * * *", &NextOptions{Timezone: "UTC", Count: 1, After: "yesterday"}, time.Now()); err == nil {
		t.Error("expected error for an invalid --after")
	}
}

func TestRootCommand_Next(t *testing.T) {
	var out bytes.Buffer
	cmd := NewRootCommand("test")
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"next", "30 6 * * *", "--tz", "America/New_York", "--count", "1", "--after", "2024-03-01T00:00:00Z"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.HasPrefix(out.String(), "2024-03-01T11:30:00Z") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestRootCommand_MigrateDownNeedsConfirmation(t *testing.T) {
	cmd := NewRootCommand("test")
	cmd.SetArgs([]string{"migrate", "down"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "--yes") {
		t.Errorf("expected confirmation error, got %v", err)
	}
}
