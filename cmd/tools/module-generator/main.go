// cmd/tools/module-generator/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"krishmitra-advisor/pkg/registry"
)

// ModuleData holds data for templates
type ModuleData struct {
	ID          string
	Name        string
	PackageName string
	Description string
	Keywords    []string
	DependsOn   []string
	Topics      []string
}

// quoteList renders a Go string slice literal body.
func quoteList(items []string) string {
	quoted := make([]string, 0, len(items))
	for _, s := range items {
		quoted = append(quoted, fmt.Sprintf("%q", s))
	}
	return strings.Join(quoted, ", ")
}

const moduleTemplate = `// Package {{ .PackageName }} implements the {{ .Name }} advisory module.
{{- if .Description }}
// {{ .Description }}
{{- end }}
package {{ .PackageName }}

import (
	"context"
	"strings"

	"krishmitra-advisor/internal/models"
	"krishmitra-advisor/internal/modules"
)

const ID models.ModuleID = "{{ .ID }}"

var keywords = []string{ {{ quoteList .Keywords }} }

type Module struct{}

func New() *Module { return &Module{} }

func (m *Module) ID() models.ModuleID { return ID }

func (m *Module) Advise(ctx context.Context, in modules.Input) (modules.Output, error) {
	if err := ctx.Err(); err != nil {
		return modules.Output{}, modules.NewFailure(modules.FailureTimeout, err)
	}
	if strings.TrimSpace(in.Text) == "" {
		return modules.Output{}, modules.NewFailure(modules.FailureInvalidInput, nil)
	}
{{- range .DependsOn }}
	if up, ok := in.UpstreamOf("{{ . }}"); ok {
		_ = up // consume {{ . }} advice here
	}
{{- end }}

	out := modules.Output{Urgency: models.UrgencyLow, Confidence: 0.5}
	if modules.ContainsAny(in.Text, keywords...) {
		out.Confidence = 0.7
	}
	out.Advice = "{{ .Name }} guidance is not available yet."
	return out, nil
}
`

const testTemplate = `package {{ .PackageName }}

import (
	"context"
	"testing"

	"krishmitra-advisor/internal/modules"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModule_Advise(t *testing.T) {
	m := New()
	out, err := m.Advise(context.Background(), modules.Input{Text: "{{ index .Keywords 0 }}"})
	require.NoError(t, err)
	assert.NotEmpty(t, out.Advice)
	assert.InDelta(t, 0.7, out.Confidence, 1e-9)
}

func TestModule_Advise_EmptyInput(t *testing.T) {
	_, err := New().Advise(context.Background(), modules.Input{})
	assert.Equal(t, modules.FailureInvalidInput, modules.KindOf(err))
}
`

func main() {
	id := flag.String("module", "", "Module ID from registry (e.g., soil)")
	outputDir := flag.String("output", "./internal/modules/", "Output directory for the generated module")
	registryPath := flag.String("registry", "configs/module-registry.json", "Path to the module registry JSON file")
	force := flag.Bool("force", false, "Overwrite existing files")
	flag.Parse()

	if *id == "" {
		fmt.Println("Usage: module-generator --module <id> [--output <dir>] [--registry <path>]")
		fmt.Println("\nExample:")
		fmt.Println("  go run cmd/tools/module-generator/main.go --module soil")
		os.Exit(1)
	}

	reg, err := registry.LoadRegistry(*registryPath)
	if err != nil {
		fmt.Printf("Error loading registry from %s: %v\n", *registryPath, err)
		os.Exit(1)
	}
	entry, ok := reg.Get(*id)
	if !ok {
		fmt.Printf("Module '%s' not found in registry %s\n", *id, *registryPath)
		os.Exit(1)
	}
	if len(entry.Keywords) == 0 {
		fmt.Printf("Module '%s' has no keywords; add some before generating\n", *id)
		os.Exit(1)
	}

	data := ModuleData{
		ID:          entry.ID,
		Name:        entry.DisplayName,
		PackageName: strings.NewReplacer("-", "", "_", "").Replace(entry.ID),
		Description: entry.Description,
		Keywords:    entry.Keywords,
		DependsOn:   entry.DependsOn,
		Topics:      entry.Topics,
	}
	if data.Name == "" {
		data.Name = entry.ID
	}

	moduleDir := filepath.Join(*outputDir, data.PackageName)
	if err := os.MkdirAll(moduleDir, 0755); err != nil {
		fmt.Printf("Error creating directory: %v\n", err)
		os.Exit(1)
	}

	funcMap := template.FuncMap{"quoteList": quoteList}
	templates := map[string]string{
		data.PackageName + ".go":      moduleTemplate,
		data.PackageName + "_test.go": testTemplate,
	}

	for filename, tmplStr := range templates {
		filePath := filepath.Join(moduleDir, filename)
		if _, err := os.Stat(filePath); err == nil && !*force {
			fmt.Printf("Skipping %s: already exists (use --force)\n", filePath)
			continue
		}

		tmpl, err := template.New(filename).Funcs(funcMap).Parse(tmplStr)
		if err != nil {
			fmt.Printf("Error parsing template %s: %v\n", filename, err)
			continue
		}
		file, err := os.Create(filePath)
		if err != nil {
			fmt.Printf("Error creating file %s: %v\n", filePath, err)
			continue
		}
		if err := tmpl.Execute(file, data); err != nil {
			fmt.Printf("Error executing template for %s: %v\n", filename, err)
		}
		file.Close()

		fmt.Printf("Generated %s\n", filePath)
	}

	fmt.Printf("\nModule scaffold generated at: %s\n", moduleDir)
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("  1. Implement the advice in %s.go\n", data.PackageName)
	fmt.Printf("  2. Register it in buildCatalog in cmd/advisor-manager/main.go\n")
	fmt.Printf("  3. Add a modules.%s entry to configs/config.yaml if it is served remotely\n", entry.ID)
}
