package workflow

import "fmt"

// dfs coloring for cycle detection
type nodeColor int

const (
	colorWhite nodeColor = iota // unvisited
	colorGray                   // on the current DFS path
	colorBlack                  // fully explored
)

// Resolve validates the dependency graph and returns a topological order of
// step ids. Independent steps are ordered by declaration, so the result is
// deterministic for a given definition.
func Resolve(def WorkflowDefinition) ([]string, error) {
	if len(def.Steps) == 0 {
		return nil, &ConfigurationError{Reason: "workflow has no steps"}
	}

	byID := make(map[string]StepDefinition, len(def.Steps))
	for _, step := range def.Steps {
		if step.ID == "" {
			return nil, &ConfigurationError{Reason: "step with empty id"}
		}
		if _, dup := byID[step.ID]; dup {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("duplicate step id %q", step.ID)}
		}
		byID[step.ID] = step
	}

	for _, step := range def.Steps {
		for _, dep := range step.DependsOn {
			if _, ok := byID[dep]; !ok {
				return nil, &ConfigurationError{Reason: fmt.Sprintf("step %q depends on unknown step %q", step.ID, dep)}
			}
			if dep == step.ID {
				return nil, &ConfigurationError{Reason: fmt.Sprintf("step %q depends on itself", step.ID)}
			}
		}
	}

	// Cycle detection: a back-edge to a gray node means a cycle.
	colors := make(map[string]nodeColor, len(def.Steps))
	var visit func(id string) error
	visit = func(id string) error {
		colors[id] = colorGray
		for _, dep := range byID[id].DependsOn {
			switch colors[dep] {
			case colorGray:
				return &ConfigurationError{Reason: fmt.Sprintf("cyclic dependency involving step %q", dep)}
			case colorWhite:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		colors[id] = colorBlack
		return nil
	}
	for _, step := range def.Steps {
		if colors[step.ID] == colorWhite {
			if err := visit(step.ID); err != nil {
				return nil, err
			}
		}
	}

	// Kahn-style ordering, scanning in declaration order so that independent
	// steps keep their declared relative position.
	placed := make(map[string]bool, len(def.Steps))
	order := make([]string, 0, len(def.Steps))
	for len(order) < len(def.Steps) {
		progressed := false
		for _, step := range def.Steps {
			if placed[step.ID] {
				continue
			}
			ready := true
			for _, dep := range step.DependsOn {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				placed[step.ID] = true
				order = append(order, step.ID)
				progressed = true
			}
		}
		if !progressed {
			// Unreachable after cycle detection, kept as a guard.
			return nil, &ConfigurationError{Reason: "cyclic dependency"}
		}
	}

	return order, nil
}

// validateDefinition performs the full load-time check: graph shape plus
// retry/timeout bounds and agent resolution.
func validateDefinition(def WorkflowDefinition, registry AdapterRegistry) error {
	if _, err := Resolve(def); err != nil {
		return err
	}
	for _, step := range def.Steps {
		if step.MaxRetries < 0 {
			return &ConfigurationError{Reason: fmt.Sprintf("step %q has negative max_retries", step.ID)}
		}
		if step.TimeoutSeconds <= 0 {
			return &ConfigurationError{Reason: fmt.Sprintf("step %q has non-positive timeout", step.ID)}
		}
		if step.AgentID == "" {
			return &ConfigurationError{Reason: fmt.Sprintf("step %q has no agent", step.ID)}
		}
		if registry != nil {
			if _, ok := registry.Lookup(step.AgentID); !ok {
				return &ConfigurationError{Reason: fmt.Sprintf("step %q references unknown agent %q", step.ID, step.AgentID)}
			}
		}
	}
	return nil
}
