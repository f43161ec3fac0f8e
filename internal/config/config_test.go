package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/OpenTraceLab/OpenTraceFabric/pkg/route"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func nullLogger() logrus.FieldLogger {
	log, _ := test.NewNullLogger()
	return log
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
search_visit_limit: 50
repository_capacity: 2
device_dir: /srv/parts
long_line_patterns:
  - ^LONG
clock_rules:
  - _EAST$=right
`)
	c, err := Load(path, nullLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.SearchVisitLimit != 50 || c.RepositoryCapacity != 2 || c.DeviceDir != "/srv/parts" {
		t.Errorf("file values not applied: %+v", c)
	}
	if c.RepairVisitLimit <= 0 || c.ImportConcurrency <= 0 {
		t.Errorf("defaults missing: %+v", c)
	}

	opts := c.RouteOptions(nil)
	if opts.VisitLimit != 50 {
		t.Errorf("VisitLimit = %d, want 50", opts.VisitLimit)
	}
	if !opts.LongLine("LONG12") || opts.LongLine("LH6") {
		t.Error("long-line patterns from the file not used")
	}
	if len(opts.ClockRules) != 1 || opts.ClockRules[0].ColumnStep != 1 {
		t.Errorf("clock rules = %+v", opts.ClockRules)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "search_visit_limit: 50\n")
	t.Setenv("FABRIC_SEARCH_VISIT_LIMIT", "75")
	t.Setenv("FABRIC_REVERSE_WORKERS", "3")

	c, err := Load(path, nullLogger())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.SearchVisitLimit != 75 {
		t.Errorf("SearchVisitLimit = %d, want 75", c.SearchVisitLimit)
	}
	if got := c.BuilderOptions(nil).ReverseWorkers; got != 3 {
		t.Errorf("ReverseWorkers = %d, want 3", got)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"bad long-line pattern", "long_line_patterns: ['(']\n"},
		{"bad clock direction", "clock_rules: ['_L$=sideways']\n"},
		{"bad yaml", "search_visit_limit: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body), nullLogger()); err == nil {
				t.Fatal("expected an error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nullLogger()); err == nil {
		t.Error("expected an error for a missing explicit file")
	}
}

func TestValidateClamps(t *testing.T) {
	c := &Config{DeviceDir: "devices"}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.SearchVisitLimit != route.DefaultVisitLimit || c.ReverseWorkers != 1 ||
		c.RepositoryCapacity != 1 || c.ImportConcurrency != 1 {
		t.Errorf("limits not clamped: %+v", c)
	}
}

func TestWrite(t *testing.T) {
	c := DefaultConfig()
	c.DeviceDir = "/srv/parts"
	var buf bytes.Buffer
	if err := c.Write(&buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"search_visit_limit:", "device_dir: /srv/parts", "clock_rules:"} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "longline") {
		t.Errorf("unexported fields dumped:\n%s", out)
	}
}
