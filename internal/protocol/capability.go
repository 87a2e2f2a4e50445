package protocol

// CapabilitySet tracks which capability groups a participant has
// advertised, Presence in the set means "supported";
// ListChanged additionally means "will notify on list mutation" for the
// groups that support it (tools/prompts/resources).
type CapabilitySet struct {
	ServerTools       bool
	ServerPrompts     bool
	ServerResources   bool
	ServerLogging     bool
	ServerCompletions bool
	ServerTasks       bool
	ServerExperimental bool

	ClientRoots       bool
	ClientSampling    bool
	ClientElicitation bool
	ClientTasks       bool

	ToolsListChanged     bool
	PromptsListChanged   bool
	ResourcesListChanged bool

	// locked becomes true once initialize succeeds (see Lock). It is a
	// flag only: nothing rejects a change to the fields above after Lock.
	locked bool
}

// Lock freezes the capability set after a successful initialize.
func (c *CapabilitySet) Lock() { c.locked = true }

// Locked reports whether the capability set has been frozen.
func (c *CapabilitySet) Locked() bool { return c.locked }

// requiredCapability maps a method name to the capability gate predicate
// it must satisfy,
var requiredCapability = map[string]func(*CapabilitySet) bool{
	"tools/list": func(c *CapabilitySet) bool { return c.ServerTools },
	"tools/call": func(c *CapabilitySet) bool { return c.ServerTools },

	"prompts/list": func(c *CapabilitySet) bool { return c.ServerPrompts },
	"prompts/get":  func(c *CapabilitySet) bool { return c.ServerPrompts },

	"resources/list":           func(c *CapabilitySet) bool { return c.ServerResources },
	"resources/templates/list": func(c *CapabilitySet) bool { return c.ServerResources },
	"resources/read":           func(c *CapabilitySet) bool { return c.ServerResources },

	"logging/setLevel": func(c *CapabilitySet) bool { return c.ServerLogging },

	"tasks/list":   func(c *CapabilitySet) bool { return c.ServerTasks },
	"tasks/get":    func(c *CapabilitySet) bool { return c.ServerTasks },
	"tasks/result": func(c *CapabilitySet) bool { return c.ServerTasks },
	"tasks/cancel": func(c *CapabilitySet) bool { return c.ServerTasks },

	"sampling/createMessage": func(c *CapabilitySet) bool { return c.ClientSampling },
	"elicitation/create":     func(c *CapabilitySet) bool { return c.ClientElicitation },
	"roots/list":             func(c *CapabilitySet) bool { return c.ClientRoots },
}

// alwaysAllowed lists methods the capability gate never blocks.
var alwaysAllowed = map[string]bool{
	"initialize": true,
	"ping":       true,
}

// capabilityNameFor returns a human-readable capability name for error
// messages, used when the gate rejects a method.
var capabilityNameFor = map[string]string{
	"tools/list": "server.tools", "tools/call": "server.tools",
	"prompts/list": "server.prompts", "prompts/get": "server.prompts",
	"resources/list": "server.resources", "resources/templates/list": "server.resources", "resources/read": "server.resources",
	"logging/setLevel": "server.logging",
	"tasks/list":        "server.tasks", "tasks/get": "server.tasks", "tasks/result": "server.tasks", "tasks/cancel": "server.tasks",
	"sampling/createMessage": "client.sampling",
	"elicitation/create":     "client.elicitation",
	"roots/list":             "client.roots",
}

// CapabilityGate enforces the method-to-capability table. When Strict is
// true, a request whose capability is absent fails before dispatch.
type CapabilityGate struct {
	Strict bool
}

// Check evaluates whether method is allowed under caps. It returns nil if
// allowed, or a Capability error if not (only meaningful when Strict, or
// always meaningful for methods with a required-capability entry — the
// caller decides whether to enforce non-strict mode).
func (g *CapabilityGate) Check(method string, caps *CapabilitySet) error {
	if alwaysAllowed[method] {
		return nil
	}
	pred, ok := requiredCapability[method]
	if !ok {
		// Unregistered methods are not capability-gated; UnknownMethod is
		// handled by the dispatcher's handler lookup instead.
		return nil
	}
	if caps == nil || !pred(caps) {
		if !g.Strict {
			return nil
		}
		return NewCapabilityError(capabilityNameFor[method])
	}
	return nil
}
