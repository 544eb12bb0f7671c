package descriptor

import (
	"fmt"

	"go.uber.org/zap"

	"formfiller/internal/dom"
)

const (
	MinDepth     = 5
	MaxDepth     = 12
	DefaultDepth = 8
)

// GeneratorConfig tunes descriptor generation.
type GeneratorConfig struct {
	// MaxDepth caps the structural path; clamped to [MinDepth, MaxDepth].
	MaxDepth int
	// ExcludeClassPrefix drops classes owned by our own overlay.
	ExcludeClassPrefix string
}

// DefaultGeneratorConfig returns the stock configuration.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{MaxDepth: DefaultDepth, ExcludeClassPrefix: "formfiller-"}
}

func (c GeneratorConfig) normalized() GeneratorConfig {
	switch {
	case c.MaxDepth == 0:
		c.MaxDepth = DefaultDepth
	case c.MaxDepth < MinDepth:
		c.MaxDepth = MinDepth
	case c.MaxDepth > MaxDepth:
		c.MaxDepth = MaxDepth
	}
	return c
}

type stage struct {
	name Strategy
	fn   StrategyFunc
}

// Generator runs an ordered pipeline of strategies over an element.
type Generator struct {
	cfg      GeneratorConfig
	pipeline []stage
	log      *zap.Logger
}

// Option customises a Generator.
type Option func(*Generator)

// WithLogger sets the logger used to report failing strategies.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) { g.log = l }
}

// WithStrategy replaces the named stage, or appends it when unknown.
func WithStrategy(name Strategy, fn StrategyFunc) Option {
	return func(g *Generator) {
		for i := range g.pipeline {
			if g.pipeline[i].name == name {
				g.pipeline[i].fn = fn
				return
			}
		}
		g.pipeline = append(g.pipeline, stage{name: name, fn: fn})
	}
}

// WithoutStrategy removes a stage from the pipeline. Structural cannot be
// removed; the generator always falls back to it.
func WithoutStrategy(name Strategy) Option {
	return func(g *Generator) {
		out := g.pipeline[:0]
		for _, s := range g.pipeline {
			if s.name != name {
				out = append(out, s)
			}
		}
		g.pipeline = out
	}
}

// NewGenerator builds a generator with the default pipeline.
func NewGenerator(cfg GeneratorConfig, opts ...Option) *Generator {
	g := &Generator{
		cfg: cfg.normalized(),
		pipeline: []stage{
			{StableID, stableIDStrategy},
			{NameType, nameTypeStrategy},
			{TestAttr, testAttrStrategy},
			{AriaLabel, attributeStrategy("aria-label")},
			{Placeholder, attributeStrategy("placeholder")},
			{Label, labelStrategy},
			{Structural, structuralStrategy},
			{TreePath, treePathStrategy},
			{Position, positionStrategy},
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Config returns the effective configuration.
func (g *Generator) Config() GeneratorConfig { return g.cfg }

// Generate describes el. It never panics: a failing strategy is logged and
// left out. The structural strategy is always present for a non-nil element.
func (g *Generator) Generate(el *dom.Element) Descriptor {
	if el == nil {
		return nil
	}
	d := make(Descriptor, len(g.pipeline))
	for _, s := range g.pipeline {
		loc, ok, err := g.run(s, el)
		if err != nil {
			g.log.Warn("descriptor strategy failed",
				zap.String("strategy", string(s.name)),
				zap.String("element", dom.Describe(el)),
				zap.Error(err))
			continue
		}
		if ok {
			d[s.name] = loc
		}
	}
	if !d.Has(Structural) {
		d[Structural] = g.fallback(el)
	}
	return d
}

func (g *Generator) run(s stage, el *dom.Element) (loc Locator, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	loc, ok = s.fn(el, g.cfg)
	return loc, ok, nil
}

func (g *Generator) fallback(el *dom.Element) Locator {
	loc, ok, err := g.run(stage{Structural, structuralStrategy}, el)
	if err == nil && ok {
		return loc
	}
	return Locator{Selector: el.Tag(), Tag: el.Tag()}
}
