package capability

import (
	"context"
	"sort"
	"sync"

	"github.com/rendis/wayfind/internal/retry"
	"github.com/rendis/wayfind/pkg/schema"
)

// Registry is the concrete thread-safe capability registry. Capabilities are
// registered once at process start and immutable thereafter.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[string]Capability
	validator    *InputValidator
	retryPolicy  retry.Policy
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		capabilities: make(map[string]Capability),
		validator:    NewInputValidator(),
		retryPolicy:  retry.DefaultPolicy,
	}
}

// Register adds a capability to the registry. Returns error on duplicate name.
func (r *Registry) Register(c Capability) error {
	if c == nil {
		return schema.NewError(schema.ErrCodeValidation, "capability is nil")
	}
	name := c.Name()
	if name == "" {
		return schema.NewError(schema.ErrCodeValidation, "capability name is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.capabilities[name]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "capability %q already registered", name)
	}
	r.capabilities[name] = c
	return nil
}

// Get retrieves a capability by name.
func (r *Registry) Get(name string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.capabilities[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeCapability, "capability %q not registered", name)
	}
	return c, nil
}

// Has checks if a capability is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.capabilities[name]
	return ok
}

// Count returns the number of registered capabilities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.capabilities)
}

// List returns info for all registered capabilities, sorted by name.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.capabilities))
	for _, c := range r.capabilities {
		infos = append(infos, Info{
			Name:        c.Name(),
			Description: c.Description(),
			InputSchema: c.InputSchema(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Invoke validates the call against the registered input schema, then
// executes the capability with bounded retries for transient failures.
// Any failure surfaces as a typed CAPABILITY_INVOCATION_ERROR.
func (r *Registry) Invoke(ctx context.Context, call *schema.CapabilityCall) (*Result, error) {
	if call == nil || call.Capability == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "capability call is empty")
	}

	c, err := r.Get(call.Capability)
	if err != nil {
		return nil, err
	}

	args := call.Args
	if args == nil {
		args = map[string]any{}
	}
	if err := r.validator.ValidateArgs(args, c.InputSchema()); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeCapability, "invalid arguments for %q: %s", call.Capability, err.Error()).WithCause(err)
	}

	var result *Result
	err = retry.Do(ctx, r.retryPolicy, func(ctx context.Context) error {
		var execErr error
		result, execErr = c.Execute(ctx, args)
		return execErr
	})
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeCapability, "capability %q failed: %s", call.Capability, err.Error()).WithCause(err)
	}
	return result, nil
}
