package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OpenTraceLab/OpenTraceFabric/internal/fabrictest"
)

// workspace writes the test fabric, its route file and a configuration
// pointing at the directory.
func workspace(t *testing.T) (dir, conf string) {
	t.Helper()
	dir = t.TempDir()
	files := map[string]string{
		"xctest.xdlrc": fabrictest.Description,
		"routes.rcf":   fabrictest.Routes,
		"bad.rcf":      "NET a\nROUTE a INT_X2Y3/EE2BEG0 INT_X3Y3/NOSUCHWIRE\n",
		"config.yaml":  "import_concurrency: 2\ndevice_dir: " + dir + "\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir, filepath.Join(dir, "config.yaml")
}

func run(t *testing.T, args []string) (string, error) {
	t.Helper()

	// Reset flags to prevent accumulation between tests
	verbose = false
	configFile = ""
	deviceDir = ""
	buildOutput = ""
	buildName = ""
	skipUnreachable = false
	concurrency = 0
	exportOutput = ""

	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// TestFabricE2E runs the commands in order against one workspace
func TestFabricE2E(t *testing.T) {
	dir, conf := workspace(t)
	in := func(name string) string { return filepath.Join(dir, name) }

	tests := []struct {
		name        string
		args        []string
		wantErr     bool
		wantContain []string
	}{
		{
			name: "build",
			args: []string{"build", "--config", conf, in("xctest.xdlrc")},
			wantContain: []string{
				"Device xctest: 4 rows x 5 columns",
				"Tiles",
				"PIPs",
				"Wrote " + in("xctest.fdb"),
			},
		},
		{
			name: "info by part name",
			args: []string{"info", "--config", conf, "xctest"},
			wantContain: []string{
				"Device xctest",
				"Site types",
				"Reverse index: yes",
			},
		},
		{
			name:        "info from database file",
			args:        []string{"info", "--config", conf, in("xctest.fdb")},
			wantContain: []string{"Device xctest"},
		},
		{
			name: "import",
			args: []string{"import", "--config", conf, "xctest", in("routes.rcf")},
			wantContain: []string{
				"net1",
				"clk",
				"GND",
				"Routed 3 of 3 net(s) on xctest",
			},
		},
		{
			name: "export",
			args: []string{"export", "--config", conf, "-j", "1", "xctest", in("routes.rcf")},
			wantContain: []string{
				"# design routes on xctest",
				"SITE_PIPS SLICE_X1Y3 OUTMUX:LUT",
				"NET GND GND",
				"ROUTE net1 INT_X2Y3/EE2BEG0 INT_X3Y3/EE2END0",
			},
		},
		{
			name: "config",
			args: []string{"config", "--config", conf},
			wantContain: []string{
				"import_concurrency: 2",
				"device_dir: " + dir,
			},
		},
		{
			name:    "unknown part",
			args:    []string{"info", "--config", conf, "nosuchpart"},
			wantErr: true,
		},
		{
			name:    "route error",
			args:    []string{"import", "--config", conf, "xctest", in("bad.rcf")},
			wantErr: true,
		},
		{
			name:    "missing argument",
			args:    []string{"build", "--config", conf},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := run(t, tt.args)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v\nOutput: %s", err, output)
			}
			for _, want := range tt.wantContain {
				if !strings.Contains(output, want) {
					t.Errorf("Output missing expected string: %q\nGot:\n%s", want, output)
				}
			}
		})
	}
}

func TestExportRoundTrip(t *testing.T) {
	dir, conf := workspace(t)
	out := filepath.Join(dir, "canonical.rcf")

	if _, err := run(t, []string{"export", "--config", conf, "-o", out, "xctest", filepath.Join(dir, "routes.rcf")}); err != nil {
		t.Fatalf("export: %v", err)
	}
	first, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}

	again, err := run(t, []string{"export", "--config", conf, "xctest", out})
	if err != nil {
		t.Fatalf("re-export: %v", err)
	}
	// Only the design name in the header differs.
	strip := func(s string) string { return s[strings.Index(s, "\n"):] }
	if strip(string(first)) != strip(again) {
		t.Errorf("canonical form not stable:\n%s\nvs\n%s", first, again)
	}
}
