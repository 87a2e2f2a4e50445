// Package mcpserver implements the server shell: in-memory tool/prompt/
// resource registries plus the standard MCP method set wired onto a
// protocol.Runtime, generalized from a fixed tool catalog into a
// pluggable registry any caller can populate.
package mcpserver

import "encoding/json"

// TaskSupport mirrors a tool's execution.taskSupport declaration.
type TaskSupport string

const (
	TaskSupportRequired  TaskSupport = "required"
	TaskSupportOptional  TaskSupport = "optional"
	TaskSupportForbidden TaskSupport = "forbidden"
)

// Annotations are behavioral hints a tool may advertise.
type Annotations struct {
	ReadOnlyHint    bool `json:"readOnlyHint,omitempty"`
	DestructiveHint bool `json:"destructiveHint,omitempty"`
	IdempotentHint  bool `json:"idempotentHint,omitempty"`
	OpenWorldHint   bool `json:"openWorldHint,omitempty"`
}

// Execution carries a tool's task-interception declaration.
type Execution struct {
	TaskSupport TaskSupport `json:"taskSupport,omitempty"`
}

// ToolHandler executes a tool call given already-schema-validated
// arguments, returning a JSON payload to validate against outputSchema
// (if any) and return to the caller.
type ToolHandler func(ctx ToolContext, arguments json.RawMessage) (json.RawMessage, error)

// Tool is a callable unit exposed via tools/list and tools/call.
type Tool struct {
	Name         string          `json:"name"`
	Title        string          `json:"title,omitempty"`
	Description  string          `json:"description,omitempty"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
	Annotations  *Annotations    `json:"annotations,omitempty"`
	Execution    Execution       `json:"execution,omitempty"`

	Handler ToolHandler `json:"-"`
}

// PromptArgument describes one named prompt input.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
}

// PromptHandler renders a prompt given its arguments.
type PromptHandler func(ctx ToolContext, arguments map[string]string) (json.RawMessage, error)

// Prompt is a named, parameterized prompt template.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`

	Handler PromptHandler `json:"-"`
}

// ResourceHandler reads the content of a resource by URI.
type ResourceHandler func(ctx ToolContext, uri string) (json.RawMessage, error)

// Resource is a readable, URI-addressed content unit.
type Resource struct {
	URI         string `json:"uri"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`

	Handler ResourceHandler `json:"-"`
}

// ResourceTemplate is a URI-templated resource family.
type ResourceTemplate struct {
	URITemplate string `json:"uriTemplate"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// ClientInfo identifies the connecting client in initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerInfo identifies this server in the initialize result.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilitiesWire is the wire shape of a client's capability
// advertisement on initialize.
type ClientCapabilitiesWire struct {
	Roots       *struct{} `json:"roots,omitempty"`
	Sampling    *struct{} `json:"sampling,omitempty"`
	Elicitation *struct{} `json:"elicitation,omitempty"`
	Tasks       *struct{} `json:"tasks,omitempty"`
}

// InitializeParams is the initialize request's params.
type InitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    ClientCapabilitiesWire `json:"capabilities"`
	ClientInfo      ClientInfo             `json:"clientInfo"`
}

// listChangedFlag is the wire shape of a capability group that can
// advertise listChanged.
type listChangedFlag struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerCapabilitiesWire is the wire shape of this server's capability
// advertisement in the initialize result.
type ServerCapabilitiesWire struct {
	Tools        *listChangedFlag `json:"tools,omitempty"`
	Prompts      *listChangedFlag `json:"prompts,omitempty"`
	Resources    *listChangedFlag `json:"resources,omitempty"`
	Logging      *struct{}        `json:"logging,omitempty"`
	Completions  *struct{}        `json:"completions,omitempty"`
	Tasks        *struct{}        `json:"tasks,omitempty"`
	Experimental *struct{}        `json:"experimental,omitempty"`
}

// InitializeResult is the initialize response's result.
type InitializeResult struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    ServerCapabilitiesWire `json:"capabilities"`
	ServerInfo      ServerInfo             `json:"serverInfo"`
}
