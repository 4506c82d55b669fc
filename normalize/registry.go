package normalize

import (
	"sort"
	"strings"
)

// Registry indexes vendors by name, e.g. "openai.chat".
type Registry struct {
	vendors map[string]Vendor
}

// NewRegistry indexes vendors by lower-cased name. Later duplicates win.
func NewRegistry(vendors ...Vendor) *Registry {
	registry := &Registry{vendors: make(map[string]Vendor, len(vendors))}
	for _, vendor := range vendors {
		registry.vendors[strings.ToLower(vendor.Name)] = vendor
	}
	return registry
}

// DefaultRegistry returns a registry of every built-in vendor table.
func DefaultRegistry() *Registry {
	return NewRegistry(
		OpenAIChat,
		OpenAIResponses,
		OpenAIEmbeddings,
		Anthropic,
		Gemini,
		Cohere,
		Mistral,
		Ollama,
		BedrockConverse,
	)
}

// Get returns the vendor registered under name, ignoring case.
func (r *Registry) Get(name string) (Vendor, bool) {
	if r == nil {
		return Vendor{}, false
	}
	vendor, ok := r.vendors[strings.ToLower(strings.TrimSpace(name))]
	return vendor, ok
}

// Resolve returns the named vendor or Generic when it is not registered.
func (r *Registry) Resolve(name string) Vendor {
	if vendor, ok := r.Get(name); ok {
		return vendor
	}
	return Generic
}

// Names returns the registered vendor names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.vendors))
	for name := range r.vendors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
