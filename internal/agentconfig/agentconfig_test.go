package agentconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultAppliesDocumentedDefaults(t *testing.T) {
	cfg := Default()
	if cfg.PDSocketLoc != DefaultPDSocketLoc {
		t.Errorf("PDSocketLoc = %q, want %q", cfg.PDSocketLoc, DefaultPDSocketLoc)
	}
	if cfg.PDInterface != "" {
		t.Errorf("PDInterface = %q, want empty", cfg.PDInterface)
	}
	if cfg.PDConfs != "" {
		t.Errorf("PDConfs = %q, want empty (no default)", cfg.PDConfs)
	}
}

func TestValidateRequiresPDConfs(t *testing.T) {
	if err := Default().Validate(); err == nil {
		t.Error("expected error for missing pd_confs")
	}
	cfg := Default()
	cfg.PDConfs = "/var/lib/pd"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadOverridesFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	content := "pd_confs: /var/lib/pd\npd_interface: eth0\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PDConfs != "/var/lib/pd" {
		t.Errorf("PDConfs = %q, want /var/lib/pd", cfg.PDConfs)
	}
	if cfg.PDInterface != "eth0" {
		t.Errorf("PDInterface = %q, want eth0", cfg.PDInterface)
	}
	if cfg.PDSocketLoc != DefaultPDSocketLoc {
		t.Errorf("PDSocketLoc = %q, want default %q preserved", cfg.PDSocketLoc, DefaultPDSocketLoc)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("Load(\"\") = %+v, want Default()", cfg)
	}
}

func TestLoadRejectsUnreadableFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
