package main

import (
	"fmt"
	"os"

	"github.com/modrun/modrun"
	"github.com/modrun/modrun/modrunconfig"
)

// buildManager reads a modrunconfig.Document from path and wires up a
// fresh modrun.ModuleManager from it: registers every declared module,
// applies its declarative CEL checks, binds explicit submodule slots, and
// records default-module-per-property-type wiring. Grounded on
// SPEC_FULL.md's modrunconfig section: the CLI is the one caller that
// exercises the declarative config path end to end.
func buildManager(path string) (*modrun.ModuleManager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("modrunctl: read config: %w", err)
	}
	doc, err := modrunconfig.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("modrunctl: parse config: %w", err)
	}

	mm := modrun.NewModuleManager()
	for key, entry := range doc.Modules {
		if _, err := mm.AddModule(key, entry.Type); err != nil {
			return nil, fmt.Errorf("modrunctl: add module %q: %w", key, err)
		}
	}
	for key, entry := range doc.Modules {
		m, err := mm.At(key)
		if err != nil {
			return nil, fmt.Errorf("modrunctl: resolve module %q: %w", key, err)
		}
		for input, expr := range entry.Checks {
			if err := m.AddCELCheck(input, expr); err != nil {
				return nil, fmt.Errorf("modrunctl: add check on %s.%s: %w", key, input, err)
			}
		}
	}
	for key, entry := range doc.Modules {
		for slot, target := range entry.Submodules {
			if err := mm.ChangeSubmod(key, slot, target); err != nil {
				return nil, fmt.Errorf("modrunctl: wire %s.%s -> %s: %w", key, slot, target, err)
			}
		}
	}
	for propertyType, key := range doc.Defaults {
		if err := mm.SetDefaultByName(propertyType, key, nil); err != nil {
			return nil, fmt.Errorf("modrunctl: set default for %q: %w", propertyType, err)
		}
	}
	return mm, nil
}
