package providers

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Route binds a route name (a media kind or an explicit provider alias) to a
// concrete model and, when set, an endpoint override.
type Route struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// RouteTable maps provider names accepted in requests to routes.
type RouteTable map[string]Route

// DefaultRoutes returns the built-in routing used when no route file is
// configured.
func DefaultRoutes(model string) RouteTable {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return RouteTable{
		"default": {Model: model},
		"image":   {Model: model},
		"video":   {Model: "veo-3.0-generate-preview"},
	}
}

// LoadRoutes reads a YAML route file of the form:
//
//	providers:
//	  gemini:
//	    model: gemini-2.5-flash
//	  veo:
//	    model: veo-3
//	    base_url: https://example.invalid/v1
func LoadRoutes(path string) (RouteTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read route file: %w", err)
	}
	var doc struct {
		Providers map[string]Route `yaml:"providers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse route file: %w", err)
	}
	if len(doc.Providers) == 0 {
		return nil, fmt.Errorf("route file %s defines no providers", path)
	}
	table := make(RouteTable, len(doc.Providers))
	for name, route := range doc.Providers {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || route.Model == "" {
			return nil, fmt.Errorf("route file %s: provider entries need a name and a model", path)
		}
		table[name] = route
	}
	return table, nil
}

// Resolve returns the route for name, falling back to "default".
func (t RouteTable) Resolve(name string) (Route, bool) {
	if route, ok := t[strings.ToLower(strings.TrimSpace(name))]; ok {
		return route, true
	}
	route, ok := t["default"]
	return route, ok
}
