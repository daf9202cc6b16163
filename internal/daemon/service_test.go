package daemon

import (
	"strings"
	"testing"

	"github.com/hgeldenhuys/trak/internal/config"
)

func TestBuildInstallOptions(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Port = 9191

	opts := BuildInstallOptions(cfg, "/usr/local/bin/trakd", "/etc/trakd/trakd.yaml")

	wantArgs := []string{"/usr/local/bin/trakd", "serve", "--config", "/etc/trakd/trakd.yaml"}
	if len(opts.ProgramArguments) != len(wantArgs) {
		t.Fatalf("ProgramArguments = %v, want %v", opts.ProgramArguments, wantArgs)
	}
	for i, arg := range wantArgs {
		if opts.ProgramArguments[i] != arg {
			t.Errorf("ProgramArguments[%d] = %q, want %q", i, opts.ProgramArguments[i], arg)
		}
	}

	if !strings.Contains(opts.Description, "9191") {
		t.Errorf("Description %q should include the configured port", opts.Description)
	}
}

func TestBuildInstallOptionsNilConfig(t *testing.T) {
	opts := BuildInstallOptions(nil, "/usr/local/bin/trakd", "/etc/trakd/trakd.yaml")
	if opts.Description != "Trakd Daemon" {
		t.Errorf("Description = %q, want %q", opts.Description, "Trakd Daemon")
	}
}
