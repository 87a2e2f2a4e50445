package config

import (
	"os"
	"testing"
)

func TestLoadValidatesBindHost(t *testing.T) {
	defer os.Unsetenv("SERVER_BIND_HOST")

	// Invalid hostnames with command injection attempts
	invalidHosts := []string{
		"localhost; rm -rf /",
		"localhost\nmalicious",
		"localhost$(whoami)",
	}

	for _, host := range invalidHosts {
		t.Run(host, func(t *testing.T) {
			os.Setenv("SERVER_BIND_HOST", host)
			cfg := Load()

			err := cfg.Validate()
			if err == nil {
				t.Errorf("Expected validation error for malicious host: %s", host)
			}
		})
	}
}

func TestLoadValidatesTLSPaths(t *testing.T) {
	defer os.Unsetenv("SERVER_TLS_CERT_FILE")

	invalidPaths := []string{
		"../../../etc/passwd",
		"/certs/../../../etc/passwd",
	}

	for _, path := range invalidPaths {
		t.Run(path, func(t *testing.T) {
			os.Setenv("SERVER_TLS_CERT_FILE", path)
			cfg := Load()

			err := cfg.Validate()
			if err == nil {
				t.Errorf("Expected validation error for path traversal: %s", path)
			}
		})
	}
}

func TestLoadValidatesAllowedOrigins(t *testing.T) {
	defer os.Unsetenv("TRANSPORT_ALLOWED_ORIGINS")

	invalidOrigins := []string{
		"javascript:alert(1)",
		"file:///etc/passwd",
		"ftp://malicious.com",
	}

	for _, origin := range invalidOrigins {
		t.Run(origin, func(t *testing.T) {
			os.Setenv("TRANSPORT_ALLOWED_ORIGINS", origin)
			cfg := Load()

			err := cfg.Validate()
			if err == nil {
				t.Errorf("Expected validation error for invalid origin URL: %s", origin)
			}
		})
	}
}

func TestLoadAllowsValidConfig(t *testing.T) {
	defer os.Unsetenv("SERVER_BIND_HOST")
	defer os.Unsetenv("TRANSPORT_ALLOWED_ORIGINS")

	os.Setenv("SERVER_BIND_HOST", "localhost")
	os.Setenv("TRANSPORT_ALLOWED_ORIGINS", "https://example.com")

	cfg := Load()
	err := cfg.Validate()
	if err != nil {
		t.Errorf("Valid configuration rejected: %v", err)
	}
}
