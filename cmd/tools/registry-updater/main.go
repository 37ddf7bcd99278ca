// cmd/tools/registry-updater/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"krishmitra-advisor/pkg/registry"
)

var registryPath string

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)

	for _, fs := range []*flag.FlagSet{addCmd, updateCmd, validateCmd, listCmd} {
		fs.StringVar(&registryPath, "path", "configs/module-registry.json", "Path to registry file")
	}

	idAdd := addCmd.String("id", "", "Module ID (e.g., soil)")
	displayName := addCmd.String("displayName", "", "Display Name (e.g., Soil Health)")
	description := addCmd.String("description", "", "Description")
	keywords := addCmd.String("keywords", "", "Comma separated routing keywords")
	dependsOn := addCmd.String("dependsOn", "", "Comma separated module IDs this module consumes")
	specificity := addCmd.Int("specificity", 5, "Conflict rank, lower wins")
	status := addCmd.String("status", registry.StatusEnabled, "Status (enabled, disabled)")

	idUpdate := updateCmd.String("id", "", "Module ID to update")
	field := updateCmd.String("field", "", "Field to update (status, specificity, keywords, dependsOn, displayName, description)")
	value := updateCmd.String("value", "", "New value for the field")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *idAdd == "" || *displayName == "" || *keywords == "" {
			fmt.Println("Error: id, displayName and keywords are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		entry := registry.ModuleEntry{
			ID:          *idAdd,
			DisplayName: *displayName,
			Description: *description,
			Keywords:    splitList(*keywords),
			DependsOn:   splitList(*dependsOn),
			Specificity: *specificity,
			Status:      *status,
		}
		if err := addModule(entry); err != nil {
			fmt.Printf("Error adding module: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added module: %s\n", *idAdd)

	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" {
			fmt.Println("Error: id and field are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateModule(*idUpdate, *field, *value); err != nil {
			fmt.Printf("Error updating module: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated module %s, field %s to %s\n", *idUpdate, *field, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateRegistry(); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}

	case "list":
		listCmd.Parse(os.Args[2:])
		if err := listModules(); err != nil {
			fmt.Printf("Error listing modules: %v\n", err)
			os.Exit(1)
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func addModule(entry registry.ModuleEntry) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to load registry: %w", err)
		}
		reg = &registry.ModuleRegistry{Version: "1.0.0"}
	}
	if _, exists := reg.Get(entry.ID); exists {
		return fmt.Errorf("module with ID %s already exists", entry.ID)
	}
	reg.Modules = append(reg.Modules, entry)
	return saveRegistry(reg)
}

func updateModule(id, field, value string) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	idx := -1
	for i := range reg.Modules {
		if reg.Modules[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("module with ID %s not found", id)
	}

	m := &reg.Modules[idx]
	switch field {
	case "status":
		if value != registry.StatusEnabled && value != registry.StatusDisabled {
			return fmt.Errorf("invalid status %q", value)
		}
		m.Status = value
	case "specificity":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid specificity value: %w", err)
		}
		m.Specificity = n
	case "keywords":
		m.Keywords = splitList(value)
	case "dependsOn":
		m.DependsOn = splitList(value)
	case "displayName":
		m.DisplayName = value
	case "description":
		m.Description = value
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
	return saveRegistry(reg)
}

func validateRegistry() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	for _, m := range reg.Modules {
		if m.DisplayName == "" {
			return fmt.Errorf("module %s missing required field: displayName", m.ID)
		}
		if len(m.Keywords) == 0 {
			return fmt.Errorf("module %s has no keywords", m.ID)
		}
	}
	if cycle := reg.FindCycle(); cycle != nil {
		return fmt.Errorf("dependency cycle: %s", strings.Join(cycle, " -> "))
	}
	fmt.Printf("Registry validation passed. Found %d modules.\n", len(reg.Modules))
	return nil
}

func listModules() error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}
	fmt.Printf("%-10s %-9s %-4s %-20s %s\n", "ID", "STATUS", "RANK", "DEPENDS ON", "KEYWORDS")
	for _, m := range reg.Modules {
		deps := strings.Join(m.DependsOn, ",")
		if deps == "" {
			deps = "-"
		}
		fmt.Printf("%-10s %-9s %-4d %-20s %d\n", m.ID, m.Status, m.Specificity, deps, len(m.Keywords))
	}
	return nil
}

func saveRegistry(reg *registry.ModuleRegistry) error {
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(registryPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return registry.Save(reg, registryPath)
}

func help() {
	fmt.Print(`
Usage: registry-updater <command> [flags]

Commands:
  add      Add a new advisory module to the registry
  update   Update an existing module's field
  validate Validate the registry file, including dependency cycles
  list     Print a summary of the registered modules
  help     Show this help message

Examples:
  registry-updater add -id soil -displayName "Soil Health" -keywords "soil,ph,salinity" -dependsOn weather -specificity 2
  registry-updater update -id finance -field status -value disabled
  registry-updater validate -path configs/module-registry.json

Use 'registry-updater <command> -h' for more information about a command.
` + "\n")
}
