// Package pipeline orchestrates the scanning stages into sessions: frame
// admission, region detection, text recognition, format classification,
// character disambiguation, temporal stabilization and the final
// decision. Loaded models are shared across sessions through an explicit
// registry; all per-session state lives in Session.
package pipeline

import (
	"log/slog"

	"github.com/scanforge/serialscan/internal/classifier"
	"github.com/scanforge/serialscan/internal/detector"
	"github.com/scanforge/serialscan/internal/disambig"
	"github.com/scanforge/serialscan/internal/models"
	"github.com/scanforge/serialscan/internal/onnx"
	"github.com/scanforge/serialscan/internal/recognizer"
	"github.com/scanforge/serialscan/internal/validator"
)

// Pipeline holds the shared, read-only stage components. Sessions created
// from one pipeline reuse its models; each session owns its mutable
// state.
type Pipeline struct {
	config        Config
	registry      *ModelRegistry
	detector      *detector.Detector
	engine        recognizer.Engine
	classifier    *classifier.Classifier
	disambiguator *disambig.Disambiguator
	validator     *validator.Validator
	submitter     Submitter
	confirmer     Confirmer
	acquired      []string
}

// Builder assembles a Pipeline. Unset collaborators stay nil; a nil
// submitter turns acceptance into a log-only event, a nil confirmer
// leaves borderline sessions suspended for external resolution.
type Builder struct {
	config    Config
	registry  *ModelRegistry
	engine    recognizer.Engine
	submitter Submitter
	confirmer Confirmer
}

// NewBuilder starts a builder with default configuration.
func NewBuilder() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(config Config) *Builder {
	b.config = config
	return b
}

// WithRegistry injects the model registry.
func (b *Builder) WithRegistry(registry *ModelRegistry) *Builder {
	b.registry = registry
	return b
}

// WithEngine injects a text recognition engine, replacing the default
// ONNX CTC recognizer.
func (b *Builder) WithEngine(engine recognizer.Engine) *Builder {
	b.engine = engine
	return b
}

// WithSubmitter injects the submission collaborator.
func (b *Builder) WithSubmitter(s Submitter) *Builder {
	b.submitter = s
	return b
}

// WithConfirmer injects the borderline confirmation collaborator.
func (b *Builder) WithConfirmer(c Confirmer) *Builder {
	b.confirmer = c
	return b
}

// Build validates the configuration and assembles the pipeline. Missing
// models do not fail the build; the affected stage runs degraded and the
// roles are reported by Degraded.
func (b *Builder) Build() (*Pipeline, error) {
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	registry := b.registry
	if registry == nil {
		registry = NewRegistry("", onnx.ModelOptions{})
	}

	p := &Pipeline{
		config:    b.config,
		registry:  registry,
		submitter: b.submitter,
		confirmer: b.confirmer,
		validator: validator.New(b.config.Validator),
	}

	detRunner := p.acquire(models.RoleDetector)
	det, err := detector.New(b.config.Detector, detRunner)
	if err != nil {
		return nil, err
	}
	p.detector = det

	p.engine = b.engine
	if p.engine == nil {
		engine, err := recognizer.NewCTC(b.config.Recognizer, p.acquire(models.RoleRecognizer), nil)
		if err != nil {
			return nil, err
		}
		p.engine = engine
	}

	p.classifier = classifier.New(b.config.Classifier, p.acquire(models.RoleClassifier))
	p.disambiguator = disambig.New(b.config.Disambig, p.acquire(models.RoleCharModel))

	if degraded := registry.Degraded(); len(degraded) > 0 {
		slog.Warn("Pipeline running with degraded capability", "missing_models", degraded)
	}
	return p, nil
}

// acquire fetches a shared runner, tolerating load failure.
func (p *Pipeline) acquire(role string) onnx.Runner {
	runner, err := p.registry.Acquire(role)
	if err != nil {
		return nil
	}
	p.acquired = append(p.acquired, role)
	return runner
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() Config { return p.config }

// Degraded lists the model roles unavailable to this pipeline.
func (p *Pipeline) Degraded() []string { return p.registry.Degraded() }

// Close releases the acquired model references. The registry owns the
// models themselves.
func (p *Pipeline) Close() {
	for _, role := range p.acquired {
		p.registry.Release(role)
	}
	p.acquired = nil
}
