package toolregistry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/cortexlabs/cortexcache/internal/cortexerr"
)

// Registry is the concurrency-safe catalog of registered tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*ToolSchema
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{tools: make(map[string]*ToolSchema)}
}

// Register adds schema under its Name. Re-registering the same name with
// an identical schema is a no-op (idempotent); re-registering with an
// incompatible schema fails with SchemaConflict, per §4.4.
func (r *Registry) Register(schema *ToolSchema) error {
	const op = "toolregistry.register"
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.tools[schema.Name]
	if ok && !existing.Equal(schema) {
		return cortexerr.New(op, cortexerr.KindSchemaConflict, nil)
	}
	r.tools[schema.Name] = schema
	return nil
}

// Get returns the schema registered under name, if any.
func (r *Registry) Get(name string) (*ToolSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.tools[name]
	return s, ok
}

// Names returns every registered tool name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks args against the schema registered for name. Every
// offending field is reported (gojsonschema.Validate does not
// short-circuit on the first error), per §4.4.
func (r *Registry) Validate(name string, args map[string]interface{}) error {
	const op = "toolregistry.validate"

	schema, ok := r.Get(name)
	if !ok {
		return cortexerr.New(op, cortexerr.KindToolNotFound, nil)
	}

	docBytes, err := json.Marshal(schema.toJSONSchemaDoc())
	if err != nil {
		return cortexerr.Wrap(op, cortexerr.KindInternal, err)
	}
	argsBytes, err := json.Marshal(args)
	if err != nil {
		return cortexerr.Wrap(op, cortexerr.KindInternal, err)
	}

	schemaLoader := gojsonschema.NewBytesLoader(docBytes)
	argsLoader := gojsonschema.NewBytesLoader(argsBytes)

	result, err := gojsonschema.Validate(schemaLoader, argsLoader)
	if err != nil {
		return cortexerr.Wrap(op, cortexerr.KindInternal, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return cortexerr.Wrap(op, cortexerr.KindValidation, fmt.Errorf("%s", strings.Join(msgs, "; ")))
}
