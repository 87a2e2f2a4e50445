package mcpserver

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/coremcp/coremcp/internal/protocol"
)

// ToolContext is the handler-facing view of an in-flight request: the
// Go context (carrying deadline/cancellation) plus the protocol
// RequestContext constructed by the runtime.
type ToolContext struct {
	Ctx context.Context
	RC  *protocol.RequestContext
}

// ErrAlreadyRegistered is returned by Register* when a name/URI collides.
type ErrAlreadyRegistered struct{ Kind, Name string }

func (e *ErrAlreadyRegistered) Error() string {
	return fmt.Sprintf("mcpserver: %s %q already registered", e.Kind, e.Name)
}

// ToolRegistry holds tools keyed by name.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]*Tool

	onChange func()
}

// NewToolRegistry constructs an empty tool registry. onChange, if
// non-nil, is invoked after every mutation — the wiring point for
// notifications/tools/list_changed.
func NewToolRegistry(onChange func()) *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]*Tool), onChange: onChange}
}

// Register adds a tool, failing if the name is already taken.
func (r *ToolRegistry) Register(t *Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return &ErrAlreadyRegistered{Kind: "tool", Name: t.Name}
	}
	r.tools[t.Name] = t
	r.notify()
	return nil
}

// Unregister removes a tool by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	r.notify()
}

// Get looks up a tool by name.
func (r *ToolRegistry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool, sorted by name for stable output.
func (r *ToolRegistry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *ToolRegistry) notify() {
	if r.onChange != nil {
		go r.onChange()
	}
}

// PromptRegistry holds prompts keyed by name.
type PromptRegistry struct {
	mu       sync.RWMutex
	prompts  map[string]*Prompt
	onChange func()
}

// NewPromptRegistry constructs an empty prompt registry.
func NewPromptRegistry(onChange func()) *PromptRegistry {
	return &PromptRegistry{prompts: make(map[string]*Prompt), onChange: onChange}
}

// Register adds a prompt, failing if the name is already taken.
func (r *PromptRegistry) Register(p *Prompt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.prompts[p.Name]; exists {
		return &ErrAlreadyRegistered{Kind: "prompt", Name: p.Name}
	}
	r.prompts[p.Name] = p
	if r.onChange != nil {
		go r.onChange()
	}
	return nil
}

// Get looks up a prompt by name.
func (r *PromptRegistry) Get(name string) (*Prompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prompts[name]
	return p, ok
}

// List returns every registered prompt, sorted by name.
func (r *PromptRegistry) List() []*Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Prompt, 0, len(r.prompts))
	for _, p := range r.prompts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ResourceRegistry holds resources keyed by URI, plus resource
// templates.
type ResourceRegistry struct {
	mu        sync.RWMutex
	resources map[string]*Resource
	templates []*ResourceTemplate
	onChange  func()
}

// NewResourceRegistry constructs an empty resource registry.
func NewResourceRegistry(onChange func()) *ResourceRegistry {
	return &ResourceRegistry{resources: make(map[string]*Resource), onChange: onChange}
}

// Register adds a resource, failing if the URI is already taken.
func (r *ResourceRegistry) Register(res *Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resources[res.URI]; exists {
		return &ErrAlreadyRegistered{Kind: "resource", Name: res.URI}
	}
	r.resources[res.URI] = res
	r.notify()
	return nil
}

// RegisterTemplate adds a resource template.
func (r *ResourceRegistry) RegisterTemplate(t *ResourceTemplate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates = append(r.templates, t)
	r.notify()
}

// Get looks up a resource by URI.
func (r *ResourceRegistry) Get(uri string) (*Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[uri]
	return res, ok
}

// List returns every registered resource, sorted by URI.
func (r *ResourceRegistry) List() []*Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// ListTemplates returns every registered resource template.
func (r *ResourceRegistry) ListTemplates() []*ResourceTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ResourceTemplate, len(r.templates))
	copy(out, r.templates)
	return out
}

func (r *ResourceRegistry) notify() {
	if r.onChange != nil {
		go r.onChange()
	}
}
