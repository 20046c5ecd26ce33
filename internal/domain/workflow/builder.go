package workflow

import (
	"fmt"

	"github.com/garyjia/agency-workflow/internal/domain/entity"
)

// GraphBuilder assembles pipelines into an immutable Graph
type GraphBuilder interface {
	// Configure returns the pipeline configuration for the given application type
	Configure(appType entity.ApplicationType) PipelineConfiguration

	// Build validates every configured pipeline and returns the frozen graph
	Build() (*Graph, error)
}

// PipelineConfiguration configures the stages of a single application type
type PipelineConfiguration interface {
	// Entry sets the stage new applications start in
	Entry(stageID string) PipelineConfiguration

	// Rework sets the stage Reject and RequestInfo decisions return to
	Rework(stageID string) PipelineConfiguration

	// Stage appends a stage definition; order is preserved
	Stage(def StageDefinition) PipelineConfiguration
}

type pipelineConfig struct {
	appType entity.ApplicationType
	entry   string
	rework  string
	stages  []StageDefinition
}

type graphBuilder struct {
	order   []entity.ApplicationType
	configs map[entity.ApplicationType]*pipelineConfig
}

// NewBuilder creates a new stage graph builder
func NewBuilder() GraphBuilder {
	return &graphBuilder{
		configs: make(map[entity.ApplicationType]*pipelineConfig),
	}
}

// Configure returns the pipeline configuration for the given application type
func (b *graphBuilder) Configure(appType entity.ApplicationType) PipelineConfiguration {
	config, exists := b.configs[appType]
	if !exists {
		config = &pipelineConfig{appType: appType}
		b.configs[appType] = config
		b.order = append(b.order, appType)
	}
	return config
}

func (c *pipelineConfig) Entry(stageID string) PipelineConfiguration {
	c.entry = stageID
	return c
}

func (c *pipelineConfig) Rework(stageID string) PipelineConfiguration {
	c.rework = stageID
	return c
}

func (c *pipelineConfig) Stage(def StageDefinition) PipelineConfiguration {
	c.stages = append(c.stages, def.clone())
	return c
}

// Build validates every configured pipeline and returns the frozen graph.
// All problems are reported together in a *ConfigError.
func (b *graphBuilder) Build() (*Graph, error) {
	cfgErr := &ConfigError{}
	graph := &Graph{
		pipelines: make(map[entity.ApplicationType]*Pipeline, len(b.configs)),
	}

	for _, appType := range b.order {
		config := b.configs[appType]
		if !appType.IsValid() {
			cfgErr.add(fmt.Sprintf("unknown application type %q", appType))
			continue
		}

		// Deep copy so later builder calls cannot reach the built graph
		pipeline := &Pipeline{
			Type:   appType,
			Entry:  config.entry,
			Rework: config.rework,
			Stages: make([]StageDefinition, 0, len(config.stages)),
			index:  make(map[string]int, len(config.stages)),
		}
		for _, def := range config.stages {
			if _, dup := pipeline.index[def.ID]; dup {
				cfgErr.add(fmt.Sprintf("%s: duplicate stage %q", appType, def.ID))
				continue
			}
			pipeline.index[def.ID] = len(pipeline.Stages)
			pipeline.Stages = append(pipeline.Stages, def.clone())
		}

		validatePipeline(pipeline, cfgErr)
		graph.pipelines[appType] = pipeline
		graph.types = append(graph.types, appType)
	}

	if !cfgErr.empty() {
		return nil, cfgErr
	}
	return graph, nil
}

func validatePipeline(p *Pipeline, cfgErr *ConfigError) {
	prefix := string(p.Type)
	if len(p.Stages) == 0 {
		cfgErr.add(prefix + ": no stages defined")
		return
	}

	for _, s := range p.Stages {
		if s.ID == "" {
			cfgErr.add(prefix + ": stage with empty id")
		}
		if !s.OwnerRole.IsValid() {
			cfgErr.add(fmt.Sprintf("%s/%s: unknown owner role %q", prefix, s.ID, s.OwnerRole))
		}
		if s.BasePriority != "" && !s.BasePriority.IsValid() {
			cfgErr.add(fmt.Sprintf("%s/%s: unknown priority %q", prefix, s.ID, s.BasePriority))
		}
		if s.SLADays < 0 {
			cfgErr.add(fmt.Sprintf("%s/%s: negative sla_days", prefix, s.ID))
		}
		if s.Terminal && len(s.Next) > 0 {
			cfgErr.add(fmt.Sprintf("%s/%s: terminal stage has next stages", prefix, s.ID))
		}
		if s.Terminal && s.RequiresPayment {
			cfgErr.add(fmt.Sprintf("%s/%s: terminal stage cannot require payment", prefix, s.ID))
		}
		if s.Rejection && !s.Terminal {
			cfgErr.add(fmt.Sprintf("%s/%s: rejection stage must be terminal", prefix, s.ID))
		}
		if !s.Terminal && len(s.Next) == 0 {
			cfgErr.add(fmt.Sprintf("%s/%s: non-terminal stage has no next stages", prefix, s.ID))
		}
		for _, next := range s.Next {
			if _, ok := p.index[next]; !ok {
				cfgErr.add(fmt.Sprintf("%s/%s: next stage %q is not defined", prefix, s.ID, next))
			}
			if next == s.ID {
				cfgErr.add(fmt.Sprintf("%s/%s: stage lists itself as next", prefix, s.ID))
			}
		}
	}

	entry, ok := p.Stage(p.Entry)
	switch {
	case p.Entry == "":
		cfgErr.add(prefix + ": entry stage not set")
	case !ok:
		cfgErr.add(fmt.Sprintf("%s: entry stage %q is not defined", prefix, p.Entry))
	case entry.Terminal:
		cfgErr.add(fmt.Sprintf("%s: entry stage %q is terminal", prefix, p.Entry))
	}

	rework, ok := p.Stage(p.Rework)
	switch {
	case p.Rework == "":
		cfgErr.add(prefix + ": rework stage not set")
	case !ok:
		cfgErr.add(fmt.Sprintf("%s: rework stage %q is not defined", prefix, p.Rework))
	case rework.Terminal:
		cfgErr.add(fmt.Sprintf("%s: rework stage %q is terminal", prefix, p.Rework))
	case p.Rework == p.Entry:
		cfgErr.add(fmt.Sprintf("%s: rework stage must differ from entry stage", prefix))
	}

	if !cfgErr.empty() {
		return
	}

	for _, s := range p.Stages {
		if _, ok := p.forward(s); !s.Terminal && len(s.Next) > 0 && !ok {
			cfgErr.add(fmt.Sprintf("%s/%s: every next stage is a rejection stage", prefix, s.ID))
		}
	}

	// Exactly one stage, the entry, may lack a predecessor
	predecessors := make(map[string]int, len(p.Stages))
	for _, s := range p.Stages {
		for _, next := range s.Next {
			predecessors[next]++
		}
		if !s.Terminal && s.ID != p.Rework {
			predecessors[p.Rework]++
		}
	}
	for _, s := range p.Stages {
		if predecessors[s.ID] == 0 && s.ID != p.Entry {
			cfgErr.add(fmt.Sprintf("%s/%s: stage has no predecessor but is not the entry stage", prefix, s.ID))
		}
		if predecessors[s.ID] > 0 && s.ID == p.Entry {
			cfgErr.add(fmt.Sprintf("%s/%s: entry stage must not have a predecessor", prefix, s.ID))
		}
	}

	hasTerminal := false
	for _, s := range p.Stages {
		if s.Terminal {
			hasTerminal = true
			break
		}
	}
	if !hasTerminal {
		cfgErr.add(prefix + ": no terminal stage defined")
	}
}
