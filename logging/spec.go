package logging

import (
	"fmt"
	"sort"
	"strings"
)

// Spec is a parsed log specification: a base level followed by
// optional component overrides, "<base>[,<component>=<level>]...".
type Spec struct {
	Base       Level
	Components map[string]Level
}

// ParseSpec parses s. The empty spec means info for everything.
func ParseSpec(s string) (Spec, error) {
	spec := Spec{Base: LevelInfo, Components: map[string]Level{}}

	for i, part := range strings.Split(strings.TrimSpace(s), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, lvl, override := strings.Cut(part, "=")
		if !override {
			if i != 0 {
				return spec, fmt.Errorf("base level %q must come first", part)
			}
			l, err := ParseLevel(part)
			if err != nil {
				return spec, err
			}
			spec.Base = l
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return spec, fmt.Errorf("empty component name in %q", part)
		}
		l, err := ParseLevel(lvl)
		if err != nil {
			return spec, fmt.Errorf("component %q: %w", name, err)
		}
		spec.Components[name] = l
	}
	return spec, nil
}

// LevelFor returns the level in force for component.
func (s *Spec) LevelFor(component string) Level {
	if l, ok := s.Components[component]; ok {
		return l
	}
	return s.Base
}

// String renders the spec so that ParseSpec(s.String()) round-trips.
// Components are sorted to keep the output stable.
func (s *Spec) String() string {
	names := make([]string, 0, len(s.Components))
	for name := range s.Components {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := []string{s.Base.String()}
	for _, name := range names {
		parts = append(parts, name+"="+s.Components[name].String())
	}
	return strings.Join(parts, ",")
}
