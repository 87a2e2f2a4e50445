package mcpserver

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/coremcp/coremcp/internal/protocol"
	"github.com/coremcp/coremcp/internal/schema"
	"github.com/coremcp/coremcp/internal/session"
	"github.com/coremcp/coremcp/internal/task"
)

// SupportedProtocolVersions lists the protocol versions this server
// negotiates, newest first. Per Open Question decision #1 (DESIGN.md):
// a requested version found in this list is echoed back; any other
// request gets the first (newest) entry, and the client is free to
// reject it post-hoc.
var SupportedProtocolVersions = []string{"2025-11-25", "2025-06-18", "2025-03-26", "2024-11-05"}

// Notifier delivers an outbound notification to a session's transport
// (an SSE event buffer append, a WebSocket frame write, or a stdio
// write), decoupling the registries from any one transport.
type Notifier interface {
	Notify(sessionID, method string, params json.RawMessage)
}

// Server wires the protocol runtime, the tool/prompt/resource
// registries, the task store/interceptor, and the session manager into
// the canonical MCP method set
type Server struct {
	Runtime   *protocol.Runtime
	Tools     *ToolRegistry
	Prompts   *PromptRegistry
	Resources *ResourceRegistry
	Sessions  *session.Manager
	Tasks     task.Store
	Validator *schema.Validator

	Info ServerInfo

	notifier Notifier
}

// NewServer constructs a Server and registers the standard MCP method
// set on rt. caps is locked by this server on successful initialize
//; it must not be locked beforehand.
func NewServer(rt *protocol.Runtime, sessions *session.Manager, tasks task.Store, validator *schema.Validator, info ServerInfo, notifier Notifier) *Server {
	s := &Server{
		Runtime:   rt,
		Sessions:  sessions,
		Tasks:     tasks,
		Validator: validator,
		Info:      info,
		notifier:  notifier,
	}
	s.Tools = NewToolRegistry(func() { s.broadcastListChanged("notifications/tools/list_changed") })
	s.Prompts = NewPromptRegistry(func() { s.broadcastListChanged("notifications/prompts/list_changed") })
	s.Resources = NewResourceRegistry(func() { s.broadcastListChanged("notifications/resources/list_changed") })

	rt.Interceptor = task.NewInterceptor(tasks, s.resolveTaskPolicy, s.onTaskTransition)

	s.registerHandlers()
	return s
}

func (s *Server) broadcastListChanged(method string) {
	if s.notifier != nil {
		s.notifier.Notify("", method, nil)
	}
}

func (s *Server) onTaskTransition(method string, t *task.Task) {
	if s.notifier == nil {
		return
	}
	payload, err := json.Marshal(t)
	if err != nil {
		return
	}
	s.notifier.Notify("", "notifications/tasks/status", payload)
}

// resolveTaskPolicy looks up a tool's execution.taskSupport for the task
// interceptor. Only tools/call is task-augmentable; every other method
// forbids tasks.
func (s *Server) resolveTaskPolicy(method string, params json.RawMessage) task.SupportPolicy {
	if method != "tools/call" {
		return task.SupportForbidden
	}
	var p struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return task.SupportForbidden
	}
	t, ok := s.Tools.Get(p.Name)
	if !ok {
		return task.SupportForbidden
	}
	switch t.Execution.TaskSupport {
	case TaskSupportRequired:
		return task.SupportRequired
	case TaskSupportOptional:
		return task.SupportOptional
	default:
		return task.SupportForbidden
	}
}

func (s *Server) registerHandlers() {
	rt := s.Runtime
	rt.RegisterRequestHandler("initialize", "", s.handleInitialize)
	rt.RegisterRequestHandler("ping", "", s.handlePing)

	rt.RegisterRequestHandler("tools/list", "", s.handleToolsList)
	rt.RegisterRequestHandler("tools/call", "", s.handleToolsCall)

	rt.RegisterRequestHandler("prompts/list", "", s.handlePromptsList)
	rt.RegisterRequestHandler("prompts/get", "", s.handlePromptsGet)

	rt.RegisterRequestHandler("resources/list", "", s.handleResourcesList)
	rt.RegisterRequestHandler("resources/templates/list", "", s.handleResourceTemplatesList)
	rt.RegisterRequestHandler("resources/read", "", s.handleResourcesRead)

	rt.RegisterRequestHandler("logging/setLevel", "", s.handleLoggingSetLevel)

	rt.RegisterRequestHandler("tasks/get", "", s.handleTasksGet)
	rt.RegisterRequestHandler("tasks/list", "", s.handleTasksList)
	rt.RegisterRequestHandler("tasks/result", "", s.handleTasksResult)
	rt.RegisterRequestHandler("tasks/cancel", "", s.handleTasksCancel)

	rt.RegisterNotificationHandler("notifications/initialized", "", func(context.Context, json.RawMessage) {})
}

func negotiateProtocolVersion(requested string) string {
	for _, v := range SupportedProtocolVersions {
		if v == requested {
			return v
		}
	}
	return SupportedProtocolVersions[0]
}

func (s *Server) handleInitialize(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p InitializeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, protocol.NewValidation([]string{err.Error()})
	}

	rc, _ := protocol.RequestContextFrom(ctx)
	negotiated := negotiateProtocolVersion(p.ProtocolVersion)

	caps := s.Runtime.Caps
	if caps != nil {
		caps.ClientRoots = p.Capabilities.Roots != nil
		caps.ClientSampling = p.Capabilities.Sampling != nil
		caps.ClientElicitation = p.Capabilities.Elicitation != nil
		caps.ClientTasks = p.Capabilities.Tasks != nil
		caps.Lock()
	}

	wire := ServerCapabilitiesWire{}
	if caps == nil || caps.ServerTools {
		wire.Tools = &listChangedFlag{ListChanged: caps == nil || caps.ToolsListChanged}
	}
	if caps == nil || caps.ServerPrompts {
		wire.Prompts = &listChangedFlag{ListChanged: caps == nil || caps.PromptsListChanged}
	}
	if caps == nil || caps.ServerResources {
		wire.Resources = &listChangedFlag{ListChanged: caps == nil || caps.ResourcesListChanged}
	}
	if caps == nil || caps.ServerLogging {
		wire.Logging = &struct{}{}
	}
	if caps == nil || caps.ServerTasks {
		wire.Tasks = &struct{}{}
	}

	result := InitializeResult{
		ProtocolVersion: negotiated,
		Capabilities:    wire,
		ServerInfo:      s.Info,
	}

	if rc != nil && s.Sessions != nil {
		if sess, err := s.Sessions.Get(rc.SessionID); err == nil {
			sess.ProtocolVersion = negotiated
			sess.Initialized = true
		}
	}

	return json.Marshal(result)
}

func (s *Server) handlePing(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	return json.RawMessage(`{}`), nil
}

func (s *Server) handleToolsList(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	tools := s.Tools.List()
	out := make([]Tool, len(tools))
	for i, t := range tools {
		out[i] = *t
	}
	return json.Marshal(struct {
		Tools []Tool `json:"tools"`
	}{Tools: out})
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, protocol.NewValidation([]string{err.Error()})
	}

	t, ok := s.Tools.Get(p.Name)
	if !ok {
		return nil, protocol.NewUnknownMethod("tools/call:" + p.Name)
	}

	if t.InputSchema != nil && s.Validator != nil {
		schemaName := "tool:" + t.Name + ":input"
		if errs := s.Validator.Validate(schemaName, p.Arguments); len(errs) > 0 {
			return nil, protocol.NewValidation(errs)
		}
	}

	rc, _ := protocol.RequestContextFrom(ctx)
	result, err := t.Handler(ToolContext{Ctx: ctx, RC: rc}, p.Arguments)
	if err != nil {
		return nil, err
	}

	if t.OutputSchema != nil && s.Validator != nil {
		schemaName := "tool:" + t.Name + ":output"
		if errs := s.Validator.Validate(schemaName, result); len(errs) > 0 {
			return nil, protocol.NewValidation(errs)
		}
	}
	return result, nil
}

func (s *Server) handlePromptsList(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	prompts := s.Prompts.List()
	out := make([]Prompt, len(prompts))
	for i, p := range prompts {
		out[i] = *p
	}
	return json.Marshal(struct {
		Prompts []Prompt `json:"prompts"`
	}{Prompts: out})
}

func (s *Server) handlePromptsGet(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, protocol.NewValidation([]string{err.Error()})
	}
	prompt, ok := s.Prompts.Get(p.Name)
	if !ok {
		return nil, protocol.NewUnknownMethod("prompts/get:" + p.Name)
	}
	rc, _ := protocol.RequestContextFrom(ctx)
	return prompt.Handler(ToolContext{Ctx: ctx, RC: rc}, p.Arguments)
}

func (s *Server) handleResourcesList(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	resources := s.Resources.List()
	out := make([]Resource, len(resources))
	for i, r := range resources {
		out[i] = *r
	}
	return json.Marshal(struct {
		Resources []Resource `json:"resources"`
	}{Resources: out})
}

func (s *Server) handleResourceTemplatesList(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	templates := s.Resources.ListTemplates()
	out := make([]ResourceTemplate, len(templates))
	for i, t := range templates {
		out[i] = *t
	}
	return json.Marshal(struct {
		ResourceTemplates []ResourceTemplate `json:"resourceTemplates"`
	}{ResourceTemplates: out})
}

func (s *Server) handleResourcesRead(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, protocol.NewValidation([]string{err.Error()})
	}
	res, ok := s.Resources.Get(p.URI)
	if !ok {
		return nil, protocol.NewUnknownMethod("resources/read:" + p.URI)
	}
	rc, _ := protocol.RequestContextFrom(ctx)
	return res.Handler(ToolContext{Ctx: ctx, RC: rc}, p.URI)
}

func (s *Server) handleLoggingSetLevel(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p struct {
		Level string `json:"level"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, protocol.NewValidation([]string{err.Error()})
	}
	rc, _ := protocol.RequestContextFrom(ctx)
	if rc != nil && s.Sessions != nil {
		if sess, err := s.Sessions.Get(rc.SessionID); err == nil {
			sess.LogLevel = p.Level
		}
	}
	return json.RawMessage(`{}`), nil
}

func (s *Server) handleTasksGet(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, protocol.NewValidation([]string{err.Error()})
	}
	t, ok := s.Tasks.GetTask(p.TaskID)
	if !ok {
		return nil, protocol.NewUnknownMethod("tasks/get:" + p.TaskID)
	}
	return json.Marshal(t)
}

func (s *Server) handleTasksList(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p struct {
		Cursor string `json:"cursor,omitempty"`
	}
	_ = json.Unmarshal(params, &p)
	tasks, next := s.Tasks.ListTasks(p.Cursor, 0)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].TaskID < tasks[j].TaskID })
	return json.Marshal(struct {
		Tasks      []*task.Task `json:"tasks"`
		NextCursor string       `json:"nextCursor,omitempty"`
	}{Tasks: tasks, NextCursor: next})
}

func (s *Server) handleTasksResult(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, protocol.NewValidation([]string{err.Error()})
	}
	res, ok := s.Tasks.GetTaskResult(p.TaskID)
	if !ok {
		return nil, protocol.NewUnknownMethod("tasks/result:" + p.TaskID)
	}
	if res.IsFailed {
		return nil, &protocol.Error{Kind: protocol.ErrHandler, Message: res.ErrMsg}
	}
	return res.Payload, nil
}

func (s *Server) handleTasksCancel(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var p struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, protocol.NewValidation([]string{err.Error()})
	}
	t, ok := s.Tasks.CancelTask(p.TaskID)
	if !ok {
		return nil, protocol.NewUnknownMethod("tasks/cancel:" + p.TaskID)
	}
	return json.Marshal(t)
}
