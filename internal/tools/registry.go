// ABOUTME: Explicit routing registry mapping function names to owning tool services
// ABOUTME: Populated at startup from each service's declared descriptor set

package tools

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/symphonylabs/symphony/internal/turn"
)

// Descriptor declares one callable function in the shape the completion API
// expects. Name is the wire-safe (encoded) form.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Service identifies one external tool-execution service.
type Service struct {
	Name    string
	BaseURL string
}

// Registry routes function names to the service that owns them. Routing is a
// total function over the name: unknown names resolve to nothing and the
// dispatcher converts them to local error turns without a network call.
type Registry struct {
	owners  map[string]Service
	catalog []Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{owners: make(map[string]Service)}
}

// Register adds one service's declared descriptors. Later registrations win
// on name collisions: the owner is rebound and the earlier catalog entry is
// replaced in place, so the model never sees two tools with the same name.
func (r *Registry) Register(svc Service, descriptors []Descriptor) {
	for _, d := range descriptors {
		if _, exists := r.owners[d.Name]; exists {
			for i := range r.catalog {
				if r.catalog[i].Name == d.Name {
					r.catalog[i] = d
					break
				}
			}
			r.owners[d.Name] = svc
			continue
		}
		r.owners[d.Name] = svc
		r.catalog = append(r.catalog, d)
	}
}

// Resolve returns the service owning the given encoded function name.
func (r *Registry) Resolve(encodedName string) (Service, bool) {
	svc, ok := r.owners[encodedName]
	return svc, ok
}

// Catalog returns the merged descriptor set across all registered services,
// in registration order. This is what gets handed to the model on every call.
func (r *Registry) Catalog() []Descriptor {
	out := make([]Descriptor, len(r.catalog))
	copy(out, r.catalog)
	return out
}

// RouteFor returns the full URL for an encoded function name: the owning
// service's base URL joined with the bare function route.
func (r *Registry) RouteFor(encodedName string) (string, error) {
	svc, ok := r.Resolve(encodedName)
	if !ok {
		return "", fmt.Errorf("no service registered for function %q", encodedName)
	}
	bare := turn.BareFunctionName(turn.DecodeFunctionName(encodedName))
	return svc.BaseURL + "/" + bare, nil
}

// LoadDescriptors reads a service's declared descriptor set from a JSON file
// (an array of function definitions, as produced by the service itself).
func LoadDescriptors(path string) ([]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading descriptor file: %w", err)
	}

	var descriptors []Descriptor
	if err := json.Unmarshal(data, &descriptors); err != nil {
		return nil, fmt.Errorf("parsing descriptor file %s: %w", path, err)
	}
	return descriptors, nil
}
