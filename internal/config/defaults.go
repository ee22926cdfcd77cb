package config

import (
	"fmt"
	"slices"
)

// GetDefaultConfig returns the default configuration: warnings only, the
// system temp dir and no fixtures.
func GetDefaultConfig() ScribbleConfig {
	return ScribbleConfig{
		GlobalSettings: GlobalSettings{
			LogLevel: "warn",
		},
		Fixtures: []FixtureDefinition{},
	}
}

// Validate checks that fixture names are unique, types are known and every
// outer or served fixture is defined before it is referenced.
func (c ScribbleConfig) Validate() error {
	seen := make(map[string]FixtureType, len(c.Fixtures))
	for i, def := range c.Fixtures {
		if def.Name == "" {
			return fmt.Errorf("fixture #%d has no name", i+1)
		}
		if _, dup := seen[def.Name]; dup {
			return fmt.Errorf("fixture %q is defined twice", def.Name)
		}
		if !slices.Contains(KnownFixtureTypes, def.Type) {
			return fmt.Errorf("fixture %q has unknown type %q", def.Name, def.Type)
		}

		switch {
		case def.Outer != "":
			outerType, ok := seen[def.Outer]
			if !ok {
				return fmt.Errorf("fixture %q: outer %q must be defined before it", def.Name, def.Outer)
			}
			if def.Type.RequiresOuter() || def.Type == FixtureTypeHTTPServer {
				if outerType != FixtureTypeTempFolder {
					return fmt.Errorf("fixture %q: outer %q must be a %s", def.Name, def.Outer, FixtureTypeTempFolder)
				}
			}
		case def.Type.RequiresOuter():
			return fmt.Errorf("fixture %q of type %s needs an outer %s", def.Name, def.Type, FixtureTypeTempFolder)
		}

		for _, s := range def.Serve {
			from, ok := seen[s.From]
			if !ok {
				return fmt.Errorf("fixture %q serves %q which must be defined before it", def.Name, s.From)
			}
			if from != FixtureTypeTempFile && from != FixtureTypeTempZipFile {
				return fmt.Errorf("fixture %q cannot serve %s fixture %q", def.Name, from, s.From)
			}
		}
		seen[def.Name] = def.Type
	}
	return nil
}
