package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// healthResponse matches internal/http.HealthResponse.
type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check coremcpd server health",
	Long: `Check the health status of the coremcpd server.

Examples:
  # Check health
  mcpctl health

  # Check health on a different server
  mcpctl health --server http://localhost:9090`,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/health", serverURL)

	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status:  %s\n", health.Status)
	fmt.Printf("Server URL:     %s\n", serverURL)
	if health.Service != "" {
		fmt.Printf("Server Version: %s\n", health.Service)
	}

	return nil
}
