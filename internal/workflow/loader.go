package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadDefinition parses a workflow definition from a YAML file and checks its
// structure. Agent resolution happens later, at StartWorkflow time, against
// the registry of the running process.
func LoadDefinition(path string) (WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return WorkflowDefinition{}, err
	}
	return ParseDefinition(data)
}

// ParseDefinition parses YAML bytes into a validated definition.
func ParseDefinition(data []byte) (WorkflowDefinition, error) {
	var def WorkflowDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return WorkflowDefinition{}, &ConfigurationError{Reason: fmt.Sprintf("failed to parse workflow: %v", err)}
	}
	if err := validateDefinition(def, nil); err != nil {
		return WorkflowDefinition{}, err
	}
	return def, nil
}
