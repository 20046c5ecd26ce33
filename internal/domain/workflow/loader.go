package workflow

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/agency-workflow/internal/domain/entity"
)

//go:embed pipelines.yaml
var defaultPipelines []byte

type graphFile struct {
	Pipelines []pipelineFile `yaml:"pipelines"`
}

type pipelineFile struct {
	Type   entity.ApplicationType `yaml:"type"`
	Entry  string                 `yaml:"entry"`
	Rework string                 `yaml:"rework"`
	Stages []StageDefinition      `yaml:"stages"`
}

// LoadDefault builds the graph from the pipelines compiled into the binary
func LoadDefault() (*Graph, error) {
	return Parse(defaultPipelines)
}

// LoadFile builds the graph from a YAML definition on disk.
// An empty path falls back to the compiled-in pipelines.
func LoadFile(path string) (*Graph, error) {
	if path == "" {
		return LoadDefault()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stage graph %s: %w", path, err)
	}
	return Parse(data)
}

// Parse builds the graph from a YAML document. Every supported application
// type must be defined exactly once.
func Parse(data []byte) (*Graph, error) {
	var file graphFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &ConfigError{Problems: []string{fmt.Sprintf("malformed yaml: %v", err)}}
	}

	cfgErr := &ConfigError{}
	seen := make(map[entity.ApplicationType]bool)
	builder := NewBuilder()

	for _, pf := range file.Pipelines {
		if seen[pf.Type] {
			cfgErr.add(fmt.Sprintf("pipeline %q defined more than once", pf.Type))
			continue
		}
		seen[pf.Type] = true

		config := builder.Configure(pf.Type).Entry(pf.Entry).Rework(pf.Rework)
		for _, def := range pf.Stages {
			if def.BasePriority == "" {
				def.BasePriority = entity.PriorityMedium
			}
			config.Stage(def)
		}
	}

	for _, appType := range entity.ApplicationTypes {
		if !seen[appType] {
			cfgErr.add(fmt.Sprintf("pipeline for %s is not defined", appType))
		}
	}

	graph, err := builder.Build()
	if err != nil {
		var built *ConfigError
		if !errors.As(err, &built) {
			return nil, err
		}
		cfgErr.Problems = append(cfgErr.Problems, built.Problems...)
	}
	if !cfgErr.empty() {
		return nil, cfgErr
	}
	return graph, nil
}
