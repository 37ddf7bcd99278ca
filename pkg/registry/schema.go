// pkg/registry/schema.go
package registry

// ModuleRegistry describes the advisory modules known to the router.
type ModuleRegistry struct {
	Version     string        `json:"version"`
	LastUpdated string        `json:"lastUpdated"`
	Modules     []ModuleEntry `json:"modules"`
}

type ModuleEntry struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	DependsOn   []string `json:"dependsOn,omitempty"`
	// Specificity orders modules for conflict tie-breaks; lower is more specific.
	Specificity int      `json:"specificity"`
	Topics      []string `json:"topics,omitempty"`
	Status      string   `json:"status"`
}
