// Package modrunconfig loads a declarative TOML document describing
// module-key to module-type bindings, submodule wiring, and
// default-module-per-property-type declarations, so a ModuleManager can be
// stood up without hand-written Go wiring code. This is the synchronous,
// in-process analogue of caddy's JSON Config/AppsRaw
// (_examples/caddyserver-caddy/caddy.go's Config), using the teacher's
// BurntSushi/toml dependency instead of JSON since the runtime has no HTTP
// admin API pushing live config changes.
package modrunconfig

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Document is the root shape of a modrun TOML config file.
type Document struct {
	// Modules maps a module key to its declared configuration.
	Modules map[string]ModuleEntry `toml:"modules"`
	// Defaults maps a property-type name to the module key that should be
	// auto-wired wherever that property type is requested as an unbound
	// submodule.
	Defaults map[string]string `toml:"defaults"`
}

// ModuleEntry declares one module-key's registration.
type ModuleEntry struct {
	// Type is the registered ModuleBase constructor id (see
	// modrun.RegisterModuleType).
	Type string `toml:"type"`
	// Submodules maps a submodule slot name to the module key that should
	// fill it.
	Submodules map[string]string `toml:"submodules"`
	// Checks maps an input field name to a CEL expression bounding it
	// (see field.AddCELCheck).
	Checks map[string]string `toml:"checks"`
}

// Parse decodes a TOML document's bytes into a Document.
func Parse(data []byte) (Document, error) {
	var doc Document
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return Document{}, fmt.Errorf("modrunconfig: parse: %w", err)
	}
	return doc, nil
}
