package registry

import (
	"fmt"
	"strings"

	"github.com/relaystack/toolhost/internal/fault"
	"github.com/relaystack/toolhost/internal/schema"
)

// Tool is a registered definition with its contracts compiled. Compilation
// happens once at Register so the request path never sees a schema error
// for a schema problem.
type Tool struct {
	Def    Definition
	Input  *schema.Compiled
	Output *schema.Compiled
}

// HasCapability reports whether the tool declares the given tag.
func (t *Tool) HasCapability(tag string) bool {
	for _, c := range t.Def.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// Registry is the catalog of callable tools. It is built sequentially at
// startup, then frozen; after Freeze it serves unlimited concurrent readers
// with no locking because nothing mutates it.
type Registry struct {
	tools  map[string]*Tool
	order  []*Tool
	dim    int
	frozen bool
}

// New creates an empty, unfrozen registry.
func New() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a definition to the catalog. Duplicate IDs fail with
// DuplicateToolId and leave the first registration visible. Schema
// compilation, credential-type validation, and embedding dimension checks
// all happen here — construction-time errors, never runtime ones.
func (r *Registry) Register(def Definition) error {
	if r.frozen {
		return fmt.Errorf("registry: register %q: registry is frozen", def.ID)
	}

	id := strings.TrimSpace(def.ID)
	if id == "" {
		return fmt.Errorf("registry: tool id is empty")
	}
	def.ID = id

	if _, exists := r.tools[id]; exists {
		return fault.Newf(fault.KindDuplicateToolID, "tool %q already registered", id)
	}
	if def.Handler == nil {
		return fmt.Errorf("registry: tool %q has no handler", id)
	}
	if err := checkCredential(def.Credential); err != nil {
		return fmt.Errorf("registry: tool %q: %w", id, err)
	}

	input, err := schema.Compile(def.InputSchema)
	if err != nil {
		return fmt.Errorf("registry: tool %q input schema: %w", id, err)
	}
	output, err := schema.Compile(def.OutputSchema)
	if err != nil {
		return fmt.Errorf("registry: tool %q output schema: %w", id, err)
	}

	if len(def.Embedding) > 0 {
		if r.dim == 0 {
			r.dim = len(def.Embedding)
		} else if len(def.Embedding) != r.dim {
			return fmt.Errorf("registry: tool %q embedding dimension %d, registry uses %d", id, len(def.Embedding), r.dim)
		}
	}

	tool := &Tool{Def: def, Input: input, Output: output}
	r.tools[id] = tool
	r.order = append(r.order, tool)
	return nil
}

// checkCredential validates a requirement's internal consistency.
func checkCredential(req CredentialRequirement) error {
	switch req.Kind {
	case "", CredentialNone:
		if req.Type != nil {
			return fmt.Errorf("credential kind none must not name a type")
		}
		return nil
	case CredentialSystem, CredentialUser:
		if req.Type == nil || req.Type.Name == "" {
			return fmt.Errorf("credential kind %s requires a named type", req.Kind)
		}
		seen := make(map[string]bool, len(req.Type.Fields))
		for _, f := range req.Type.Fields {
			if f.Name == "" {
				return fmt.Errorf("credential type %q has an unnamed field", req.Type.Name)
			}
			if seen[f.Name] {
				return fmt.Errorf("credential type %q declares field %q twice", req.Type.Name, f.Name)
			}
			if f.Required && f.Default != "" {
				return fmt.Errorf("credential type %q field %q is required and cannot default", req.Type.Name, f.Name)
			}
			seen[f.Name] = true
		}
		return nil
	default:
		return fmt.Errorf("unknown credential kind %q", req.Kind)
	}
}

// Freeze closes the registry to further registration. Idempotent.
func (r *Registry) Freeze() { r.frozen = true }

// Dimension returns the shared embedding dimension, 0 if no tool carries one.
func (r *Registry) Dimension() int { return r.dim }

// Get returns the registered tool or ToolNotFound.
func (r *Registry) Get(id string) (*Tool, error) {
	tool, ok := r.tools[id]
	if !ok {
		return nil, fault.Newf(fault.KindToolNotFound, "tool %q is not registered", id)
	}
	return tool, nil
}

// List returns tools in registration order. When tags are given, only tools
// declaring every requested tag are included.
func (r *Registry) List(tags ...string) []*Tool {
	if len(tags) == 0 {
		out := make([]*Tool, len(r.order))
		copy(out, r.order)
		return out
	}
	var out []*Tool
	for _, tool := range r.order {
		keep := true
		for _, tag := range tags {
			if !tool.HasCapability(tag) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, tool)
		}
	}
	return out
}

// Len returns the catalog size.
func (r *Registry) Len() int { return len(r.order) }
