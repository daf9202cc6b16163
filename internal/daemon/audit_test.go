package daemon

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAuditServeCommand(t *testing.T) {
	tests := []struct {
		name          string
		params        AuditParams
		expectedCodes []string
	}{
		{
			name: "nil command",
			params: AuditParams{
				Command: nil,
			},
			expectedCodes: []string{AuditCodeServeCommandMissing},
		},
		{
			name: "empty program arguments",
			params: AuditParams{
				Command: &ServiceCommand{
					ProgramArguments: []string{},
				},
			},
			expectedCodes: []string{AuditCodeServeCommandMissing},
		},
		{
			name: "missing serve subcommand",
			params: AuditParams{
				Command: &ServiceCommand{
					ProgramArguments: []string{"/usr/bin/trakd", "help"},
				},
			},
			expectedCodes: []string{AuditCodeServeCommandMissing},
		},
		{
			name: "has serve subcommand",
			params: AuditParams{
				Command: &ServiceCommand{
					ProgramArguments: []string{"/usr/bin/trakd", "serve", "--config", "trakd.yaml"},
				},
			},
			expectedCodes: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := auditServeCommand(tt.params)

			if len(issues) != len(tt.expectedCodes) {
				t.Errorf("Expected %d issues, got %d", len(tt.expectedCodes), len(issues))
				return
			}

			for i, code := range tt.expectedCodes {
				if issues[i].Code != code {
					t.Errorf("Expected issue code %q, got %q", code, issues[i].Code)
				}
			}
		})
	}
}

func TestAuditBinaryPath(t *testing.T) {
	tmpDir := t.TempDir()
	existingBin := filepath.Join(tmpDir, "trakd")
	if err := os.WriteFile(existingBin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write fixture binary: %v", err)
	}

	tests := []struct {
		name          string
		params        AuditParams
		expectedCodes []string
	}{
		{
			name: "nil command",
			params: AuditParams{
				Command: nil,
			},
			expectedCodes: []string{},
		},
		{
			name: "relative binary path",
			params: AuditParams{
				Command: &ServiceCommand{
					ProgramArguments: []string{"trakd", "serve"},
				},
			},
			expectedCodes: []string{AuditCodeBinaryNotAbsolute},
		},
		{
			name: "absolute but missing binary",
			params: AuditParams{
				Command: &ServiceCommand{
					ProgramArguments: []string{filepath.Join(tmpDir, "nonexistent"), "serve"},
				},
			},
			expectedCodes: []string{AuditCodeBinaryMissing},
		},
		{
			name: "absolute and present binary",
			params: AuditParams{
				Command: &ServiceCommand{
					ProgramArguments: []string{existingBin, "serve"},
				},
			},
			expectedCodes: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := auditBinaryPath(tt.params)

			if len(issues) != len(tt.expectedCodes) {
				t.Errorf("Expected %d issues, got %d: %+v", len(tt.expectedCodes), len(issues), issues)
				return
			}
			for i, code := range tt.expectedCodes {
				if issues[i].Code != code {
					t.Errorf("Expected issue code %q, got %q", code, issues[i].Code)
				}
			}
		})
	}
}

func TestAuditDataPaths(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "trakd.yaml")
	if err := os.WriteFile(configFile, []byte("server:\n  port: 8787\n"), 0o644); err != nil {
		t.Fatalf("write fixture config: %v", err)
	}
	dataDir := filepath.Join(tmpDir, "data")
	if err := os.Mkdir(dataDir, 0o755); err != nil {
		t.Fatalf("create fixture data dir: %v", err)
	}

	tests := []struct {
		name          string
		params        AuditParams
		expectedCodes []string
	}{
		{
			name: "both present",
			params: AuditParams{
				ConfigPath: configFile,
				DataDir:    dataDir,
			},
			expectedCodes: []string{},
		},
		{
			name: "config missing",
			params: AuditParams{
				ConfigPath: filepath.Join(tmpDir, "missing.yaml"),
				DataDir:    dataDir,
			},
			expectedCodes: []string{AuditCodeConfigPathMissing},
		},
		{
			name: "data dir missing",
			params: AuditParams{
				ConfigPath: configFile,
				DataDir:    filepath.Join(tmpDir, "missing-data"),
			},
			expectedCodes: []string{AuditCodeDataDirMissing},
		},
		{
			name:          "neither set",
			params:        AuditParams{},
			expectedCodes: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := auditDataPaths(tt.params)
			if len(issues) != len(tt.expectedCodes) {
				t.Errorf("Expected %d issues, got %d: %+v", len(tt.expectedCodes), len(issues), issues)
				return
			}
			for i, code := range tt.expectedCodes {
				if issues[i].Code != code {
					t.Errorf("Expected issue code %q, got %q", code, issues[i].Code)
				}
			}
		})
	}
}

func TestAuditSystemdUnit(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		expectedCodes []string
	}{
		{
			name: "good unit file",
			content: `[Unit]
Description=Trakd Daemon
After=network-online.target
Wants=network-online.target

[Service]
ExecStart=/usr/bin/trakd serve
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`,
			expectedCodes: []string{},
		},
		{
			name: "missing After network-online",
			content: `[Unit]
Description=Trakd Daemon
After=network.target
Wants=network-online.target

[Service]
ExecStart=/usr/bin/trakd serve
RestartSec=5

[Install]
WantedBy=default.target
`,
			expectedCodes: []string{AuditCodeSystemdAfterNetwork},
		},
		{
			name: "missing Wants network-online",
			content: `[Unit]
Description=Trakd Daemon
After=network-online.target

[Service]
ExecStart=/usr/bin/trakd serve
RestartSec=5

[Install]
WantedBy=default.target
`,
			expectedCodes: []string{AuditCodeSystemdWantsNetwork},
		},
		{
			name: "RestartSec too low",
			content: `[Unit]
Description=Trakd Daemon
After=network-online.target
Wants=network-online.target

[Service]
ExecStart=/usr/bin/trakd serve
RestartSec=1

[Install]
WantedBy=default.target
`,
			expectedCodes: []string{AuditCodeSystemdRestartSec},
		},
		{
			name: "RestartSec too high",
			content: `[Unit]
Description=Trakd Daemon
After=network-online.target
Wants=network-online.target

[Service]
ExecStart=/usr/bin/trakd serve
RestartSec=30

[Install]
WantedBy=default.target
`,
			expectedCodes: []string{AuditCodeSystemdRestartSec},
		},
		{
			name: "missing RestartSec",
			content: `[Unit]
Description=Trakd Daemon
After=network-online.target
Wants=network-online.target

[Service]
ExecStart=/usr/bin/trakd serve

[Install]
WantedBy=default.target
`,
			expectedCodes: []string{AuditCodeSystemdRestartSec},
		},
		{
			name: "all issues",
			content: `[Unit]
Description=Trakd Daemon

[Service]
ExecStart=/usr/bin/trakd serve

[Install]
WantedBy=default.target
`,
			expectedCodes: []string{
				AuditCodeSystemdAfterNetwork,
				AuditCodeSystemdWantsNetwork,
				AuditCodeSystemdRestartSec,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			unitPath := filepath.Join(tmpDir, "trakd.service")
			if err := os.WriteFile(unitPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write unit file: %v", err)
			}

			issues, err := auditSystemdUnit(unitPath)
			if err != nil {
				t.Fatalf("auditSystemdUnit() error: %v", err)
			}

			if len(issues) != len(tt.expectedCodes) {
				t.Errorf("Expected %d issues, got %d: %+v", len(tt.expectedCodes), len(issues), issues)
				return
			}

			for _, expectedCode := range tt.expectedCodes {
				found := false
				for _, issue := range issues {
					if issue.Code == expectedCode {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("Expected to find issue code %q in %+v", expectedCode, issues)
				}
			}
		})
	}
}

func TestAuditLaunchdPlist(t *testing.T) {
	tests := []struct {
		name          string
		content       string
		expectedCodes []string
	}{
		{
			name: "good plist",
			content: `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.hgeldenhuys.trakd</string>
    <key>ProgramArguments</key>
    <array>
        <string>/usr/local/bin/trakd</string>
        <string>serve</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
</dict>
</plist>
`,
			expectedCodes: []string{},
		},
		{
			name: "RunAtLoad false",
			content: `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.hgeldenhuys.trakd</string>
    <key>RunAtLoad</key>
    <false/>
    <key>KeepAlive</key>
    <true/>
</dict>
</plist>
`,
			expectedCodes: []string{AuditCodeLaunchdRunAtLoad},
		},
		{
			name: "missing RunAtLoad",
			content: `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.hgeldenhuys.trakd</string>
    <key>KeepAlive</key>
    <true/>
</dict>
</plist>
`,
			expectedCodes: []string{AuditCodeLaunchdRunAtLoad},
		},
		{
			name: "KeepAlive false",
			content: `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.hgeldenhuys.trakd</string>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <false/>
</dict>
</plist>
`,
			expectedCodes: []string{AuditCodeLaunchdKeepAlive},
		},
		{
			name: "missing KeepAlive",
			content: `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.hgeldenhuys.trakd</string>
    <key>RunAtLoad</key>
    <true/>
</dict>
</plist>
`,
			expectedCodes: []string{AuditCodeLaunchdKeepAlive},
		},
		{
			name: "KeepAlive as dict (valid)",
			content: `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.hgeldenhuys.trakd</string>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <dict>
        <key>SuccessfulExit</key>
        <false/>
    </dict>
</dict>
</plist>
`,
			expectedCodes: []string{},
		},
		{
			name: "all issues",
			content: `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.hgeldenhuys.trakd</string>
</dict>
</plist>
`,
			expectedCodes: []string{AuditCodeLaunchdRunAtLoad, AuditCodeLaunchdKeepAlive},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			plistPath := filepath.Join(tmpDir, "com.hgeldenhuys.trakd.plist")
			if err := os.WriteFile(plistPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write plist file: %v", err)
			}

			issues, err := auditLaunchdPlist(plistPath)
			if err != nil {
				t.Fatalf("auditLaunchdPlist() error: %v", err)
			}

			if len(issues) != len(tt.expectedCodes) {
				t.Errorf("Expected %d issues, got %d: %+v", len(tt.expectedCodes), len(issues), issues)
				return
			}

			for _, expectedCode := range tt.expectedCodes {
				found := false
				for _, issue := range issues {
					if issue.Code == expectedCode {
						found = true
						break
					}
				}
				if !found {
					t.Errorf("Expected to find issue code %q in %+v", expectedCode, issues)
				}
			}
		})
	}
}

func TestAuditServiceConfig(t *testing.T) {
	tmpDir := t.TempDir()
	existingBin := filepath.Join(tmpDir, "trakd")
	if err := os.WriteFile(existingBin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write fixture binary: %v", err)
	}

	tests := []struct {
		name          string
		params        AuditParams
		expectOK      bool
		minIssueCount int
	}{
		{
			name: "minimal valid config",
			params: AuditParams{
				Platform: "linux",
				Command: &ServiceCommand{
					ProgramArguments: []string{existingBin, "serve"},
				},
			},
			expectOK:      true,
			minIssueCount: 0,
		},
		{
			name: "missing command",
			params: AuditParams{
				Platform: "linux",
				Command:  nil,
			},
			expectOK:      false,
			minIssueCount: 1,
		},
		{
			name: "missing binary and data paths",
			params: AuditParams{
				Platform: "darwin",
				Command: &ServiceCommand{
					ProgramArguments: []string{filepath.Join(tmpDir, "missing-trakd"), "serve"},
				},
				ConfigPath: filepath.Join(tmpDir, "missing.yaml"),
				DataDir:    filepath.Join(tmpDir, "missing-data"),
			},
			expectOK:      false,
			minIssueCount: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			audit, err := AuditServiceConfig(tt.params)
			if err != nil {
				t.Fatalf("AuditServiceConfig() error: %v", err)
			}

			if audit.OK != tt.expectOK {
				t.Errorf("Expected OK=%v, got %v (issues: %+v)", tt.expectOK, audit.OK, audit.Issues)
			}

			if len(audit.Issues) < tt.minIssueCount {
				t.Errorf("Expected at least %d issues, got %d", tt.minIssueCount, len(audit.Issues))
			}
		})
	}
}

func TestAuditServiceConfigWithServiceFile(t *testing.T) {
	t.Run("linux with unit file", func(t *testing.T) {
		tmpDir := t.TempDir()
		unitPath := filepath.Join(tmpDir, "trakd.service")
		unitContent := `[Unit]
Description=Trakd Daemon

[Service]
ExecStart=/usr/bin/trakd serve

[Install]
WantedBy=default.target
`
		if err := os.WriteFile(unitPath, []byte(unitContent), 0644); err != nil {
			t.Fatalf("Failed to write unit file: %v", err)
		}

		params := AuditParams{
			Platform: "linux",
			Command: &ServiceCommand{
				ProgramArguments: []string{"/usr/bin/trakd", "serve"},
				SourcePath:       unitPath,
			},
		}

		audit, err := AuditServiceConfig(params)
		if err != nil {
			t.Fatalf("AuditServiceConfig() error: %v", err)
		}

		hasSystemdIssue := false
		for _, issue := range audit.Issues {
			if issue.Code == AuditCodeSystemdAfterNetwork ||
				issue.Code == AuditCodeSystemdWantsNetwork ||
				issue.Code == AuditCodeSystemdRestartSec {
				hasSystemdIssue = true
				break
			}
		}
		if !hasSystemdIssue {
			t.Error("Expected systemd-related issues")
		}
	})

	t.Run("darwin with plist file", func(t *testing.T) {
		tmpDir := t.TempDir()
		plistPath := filepath.Join(tmpDir, "com.hgeldenhuys.trakd.plist")
		plistContent := `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>com.hgeldenhuys.trakd</string>
</dict>
</plist>
`
		if err := os.WriteFile(plistPath, []byte(plistContent), 0644); err != nil {
			t.Fatalf("Failed to write plist file: %v", err)
		}

		params := AuditParams{
			Platform: "darwin",
			Command: &ServiceCommand{
				ProgramArguments: []string{"/usr/local/bin/trakd", "serve"},
				SourcePath:       plistPath,
			},
		}

		audit, err := AuditServiceConfig(params)
		if err != nil {
			t.Fatalf("AuditServiceConfig() error: %v", err)
		}

		hasLaunchdIssue := false
		for _, issue := range audit.Issues {
			if issue.Code == AuditCodeLaunchdRunAtLoad ||
				issue.Code == AuditCodeLaunchdKeepAlive {
				hasLaunchdIssue = true
				break
			}
		}
		if !hasLaunchdIssue {
			t.Error("Expected launchd-related issues")
		}
	})
}

func TestServiceConfigIssueLevels(t *testing.T) {
	params := AuditParams{
		Platform: "linux",
		Command: &ServiceCommand{
			ProgramArguments: []string{"trakd", "serve"},
		},
	}

	audit, err := AuditServiceConfig(params)
	if err != nil {
		t.Fatalf("AuditServiceConfig() error: %v", err)
	}

	for _, issue := range audit.Issues {
		if issue.Level != LevelRecommended && issue.Level != LevelAggressive {
			t.Errorf("Issue %q has invalid level: %q", issue.Code, issue.Level)
		}
	}
}
