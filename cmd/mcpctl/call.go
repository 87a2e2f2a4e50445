package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	callParams    string
	callSessionID string
)

var callCmd = &cobra.Command{
	Use:   "call <method>",
	Short: "Send an arbitrary JSON-RPC request to the server",
	Long: `Call sends a single JSON-RPC request to the server's Streamable HTTP
endpoint and prints the raw result. Requires a prior "initialize" call's
session id for any method other than "initialize".

Examples:
  # List tools within an existing session
  mcpctl call tools/list --session <id>

  # Call a tool with arguments
  mcpctl call tools/call --session <id> --params '{"name":"echo","arguments":{"text":"hi"}}'`,
	Args: cobra.ExactArgs(1),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVar(&callParams, "params", "{}", "JSON-RPC params, as a JSON object")
	callCmd.Flags().StringVar(&callSessionID, "session", "", "Mcp-Session-Id from a prior initialize call")
}

func runCall(cmd *cobra.Command, args []string) error {
	method := args[0]

	var params json.RawMessage
	if callParams != "" {
		if !json.Valid([]byte(callParams)) {
			return fmt.Errorf("--params is not valid JSON: %q", callParams)
		}
		params = json.RawMessage(callParams)
	}

	resp, _, err := postMCP(serverURL, callSessionID, method, params, 1)
	if err != nil {
		return err
	}

	var pretty interface{}
	if err := json.Unmarshal(resp.Result, &pretty); err != nil {
		fmt.Println(string(resp.Result))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return fmt.Errorf("format result: %w", err)
	}

	fmt.Println(string(out))
	return nil
}
