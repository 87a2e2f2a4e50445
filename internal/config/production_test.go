package config

import (
	"os"
	"testing"
)

func TestProductionConfigDefaults(t *testing.T) {
	defer os.Unsetenv("MCP_PRODUCTION_MODE")
	defer os.Unsetenv("MCP_LOCAL_MODE")
	os.Unsetenv("MCP_PRODUCTION_MODE")
	os.Unsetenv("MCP_LOCAL_MODE")

	cfg := Load()

	if cfg.Production.Enabled {
		t.Error("Production.Enabled = true, want false (disabled by default)")
	}
}

func TestProductionConfigEnabledViaEnv(t *testing.T) {
	defer os.Unsetenv("MCP_PRODUCTION_MODE")
	os.Setenv("MCP_PRODUCTION_MODE", "1")

	cfg := Load()

	if !cfg.Production.Enabled {
		t.Error("Production.Enabled = false, want true when MCP_PRODUCTION_MODE=1")
	}
}

func TestProductionConfigRequiresTLSFiles(t *testing.T) {
	cfg := Load()
	cfg.Production.Enabled = true
	cfg.Production.RequireTLS = true
	cfg.Server.TLSCertFile = ""
	cfg.Server.TLSKeyFile = ""

	if err := cfg.Validate(); err == nil {
		t.Error("Validate() should fail when RequireTLS is set but no TLS files are configured")
	}
}
