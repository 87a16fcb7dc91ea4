package transfer

import "context"

// Schema is the static declaration of the resource hierarchy to
// mirror. It is data, not code: adding a resource type means adding a
// name to the table, never touching the traversal.
type Schema struct {
	// Root is the top-level resource type.
	Root string

	// Children lists each parent's subresource types in the order
	// they are indexed, fetched, and pushed.
	Children map[string][]string
}

// ChildrenOf returns the declared subresource types for a parent.
func (s Schema) ChildrenOf(resource string) []string {
	return s.Children[resource]
}

// DefaultSchema mirrors journals and their declared subresources.
// Roles additionally cascade to the flat users registry via the fetch
// handler registered for them at handler construction.
var DefaultSchema = Schema{
	Root: "journals",
	Children: map[string][]string{
		"journals": {"roles", "issues", "sections"},
	},
}

// FetchHandler performs the phase-2 work for one index entry of a
// resource type. Custom handlers replace the generic
// fetch-and-store-the-record behavior with an arbitrary side effect,
// such as cascading to a different resource family.
type FetchHandler func(ctx context.Context, jc JournalContext, resource string, entry Record) error

// HandlerRegistry maps resource-type names to custom fetch handlers.
// Types without an entry use the generic behavior. The registry is
// populated at handler construction, so every special case is
// declared data, not hidden control flow.
type HandlerRegistry struct {
	handlers map[string]FetchHandler
}

// NewHandlerRegistry creates an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]FetchHandler)}
}

// Register sets the handler for a resource type, replacing any
// previous registration.
func (r *HandlerRegistry) Register(resource string, handler FetchHandler) {
	r.handlers[resource] = handler
}

// Lookup returns the handler registered for a resource type.
func (r *HandlerRegistry) Lookup(resource string) (FetchHandler, bool) {
	handler, ok := r.handlers[resource]
	return handler, ok
}
