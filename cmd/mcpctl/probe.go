package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var probeProtocolVersion string

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Perform the MCP initialize handshake against a server",
	Long: `Probe sends an initialize request to the server's Streamable HTTP
endpoint and prints the negotiated protocol version, server info, and
advertised capabilities.

Examples:
  # Probe with the default protocol version
  mcpctl probe

  # Request a specific protocol version
  mcpctl probe --protocol-version 2025-03-26`,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probeProtocolVersion, "protocol-version", "2025-06-18", "protocol version to request")
}

type initializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
	ClientInfo      clientInfo      `json:"clientInfo"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func runProbe(cmd *cobra.Command, args []string) error {
	params, err := json.Marshal(initializeParams{
		ProtocolVersion: probeProtocolVersion,
		Capabilities:    json.RawMessage(`{}`),
		ClientInfo:      clientInfo{Name: "mcpctl", Version: version},
	})
	if err != nil {
		return fmt.Errorf("marshal initialize params: %w", err)
	}

	resp, headers, err := postMCP(serverURL, "", "initialize", params, 1)
	if err != nil {
		return err
	}

	sessionID := headers.Get("Mcp-Session-Id")

	var pretty map[string]interface{}
	if err := json.Unmarshal(resp.Result, &pretty); err != nil {
		return fmt.Errorf("decode initialize result: %w", err)
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return fmt.Errorf("format result: %w", err)
	}

	fmt.Println(string(out))
	if sessionID != "" {
		fmt.Printf("\nSession-Id: %s\n", sessionID)
	}

	return nil
}
