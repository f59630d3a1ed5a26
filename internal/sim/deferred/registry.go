package deferred

import (
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Registry maps command names to handlers. Modules populate it at load
// time, before or during startup; it has no lifecycle of its own.
type Registry struct {
	handlers map[string]Handler
	schemas  map[string]*jsonschema.Schema
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: map[string]Handler{},
		schemas:  map[string]*jsonschema.Schema{},
	}
}

// Register stores a handler under name. Re-registering the same name
// silently replaces the previous handler (last writer wins).
func (r *Registry) Register(name string, h Handler) {
	if name == "" || h == nil {
		return
	}
	r.handlers[name] = h
}

// SetParamsSchema attaches an optional JSON schema for the command's
// params. When present, AddCommand validates params against it.
func (r *Registry) SetParamsSchema(name string, s *jsonschema.Schema) {
	if name == "" || s == nil {
		return
	}
	r.schemas[name] = s
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

func (r *Registry) paramsSchema(name string) (*jsonschema.Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}
