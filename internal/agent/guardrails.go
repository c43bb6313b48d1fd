package agent

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sharow/sharow/internal/adapter/observability"
	"github.com/sharow/sharow/internal/domain"
)

//go:embed guardrails.yaml
var defaultGuardrails []byte

// Guardrail stages.
const (
	StageInput  = "input"
	StageOutput = "output"
)

// GuardrailError reports a tripped guard.
type GuardrailError struct {
	Stage   string
	Guard   string
	Message string
}

func (e *GuardrailError) Error() string {
	return fmt.Sprintf("%s guardrail %q tripped: %s", e.Stage, e.Guard, e.Message)
}

func (e *GuardrailError) Unwrap() error { return domain.ErrGuardrail }

// Guard checks a piece of text. A nil return means the text passed.
type Guard interface {
	Name() string
	Parallel() bool
	Check(ctx context.Context, text string) error
}

// GuardSpec is one entry of guardrails.yaml.
type GuardSpec struct {
	Name     string   `yaml:"name"`
	Type     string   `yaml:"type"`
	Parallel bool     `yaml:"parallel"`
	Message  string   `yaml:"message"`
	Keywords []string `yaml:"keywords"`
	Patterns []string `yaml:"patterns"`
	Phrases  []string `yaml:"phrases"`
	Window   int      `yaml:"window"`
}

// GuardrailsConfig is the document shape of guardrails.yaml.
type GuardrailsConfig struct {
	Input  []GuardSpec `yaml:"input"`
	Output []GuardSpec `yaml:"output"`
}

// Guardrails holds the input and output pipelines.
type Guardrails struct {
	Input  *Pipeline
	Output *Pipeline
}

// LoadGuardrails reads guard definitions from path, or the embedded defaults when path is empty.
func LoadGuardrails(path string) (*Guardrails, error) {
	raw := defaultGuardrails
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("op=agent.LoadGuardrails: %w", err)
		}
		raw = b
	}
	var cfg GuardrailsConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("op=agent.LoadGuardrails: %w", err)
	}
	return NewGuardrails(cfg)
}

// NewGuardrails builds both pipelines from a config.
func NewGuardrails(cfg GuardrailsConfig) (*Guardrails, error) {
	in, err := newPipeline(StageInput, cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("op=agent.NewGuardrails: %w", err)
	}
	out, err := newPipeline(StageOutput, cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("op=agent.NewGuardrails: %w", err)
	}
	return &Guardrails{Input: in, Output: out}, nil
}

// Pipeline runs a list of guards for one stage.
type Pipeline struct {
	stage  string
	guards []Guard
}

// NewPipeline wraps prebuilt guards.
func NewPipeline(stage string, guards ...Guard) *Pipeline {
	return &Pipeline{stage: stage, guards: guards}
}

func newPipeline(stage string, specs []GuardSpec) (*Pipeline, error) {
	p := &Pipeline{stage: stage}
	for _, s := range specs {
		g, err := buildGuard(stage, s)
		if err != nil {
			return nil, err
		}
		p.guards = append(p.guards, g)
	}
	return p, nil
}

// Guards returns the configured guards in order.
func (p *Pipeline) Guards() []Guard { return p.guards }

// Run executes sequential guards in order, then the parallel ones concurrently.
// The first tripped guard is returned as a *GuardrailError.
func (p *Pipeline) Run(ctx context.Context, text string) error {
	if p == nil {
		return nil
	}
	var parallel []Guard
	for _, g := range p.guards {
		if g.Parallel() {
			parallel = append(parallel, g)
			continue
		}
		if err := g.Check(ctx, text); err != nil {
			return p.trip(g, err)
		}
	}
	if len(parallel) == 0 {
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, g := range parallel {
		g := g
		eg.Go(func() error {
			if err := g.Check(egCtx, text); err != nil {
				return p.trip(g, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

func (p *Pipeline) trip(g Guard, err error) error {
	observability.GuardrailTripped(p.stage, g.Name())
	if ge, ok := err.(*GuardrailError); ok {
		ge.Stage = p.stage
		ge.Guard = g.Name()
		return ge
	}
	return &GuardrailError{Stage: p.stage, Guard: g.Name(), Message: err.Error()}
}

func buildGuard(stage string, s GuardSpec) (Guard, error) {
	base := guardBase{name: s.Name, parallel: s.Parallel, message: s.Message}
	if base.name == "" {
		base.name = s.Type
	}
	switch s.Type {
	case "non_empty":
		return &nonEmptyGuard{guardBase: base}, nil
	case "allowed_topics":
		if len(s.Keywords) == 0 {
			return nil, fmt.Errorf("%s guard %q: keywords are required", stage, base.name)
		}
		kw := make([]string, 0, len(s.Keywords))
		for _, k := range s.Keywords {
			kw = append(kw, strings.ToLower(strings.TrimSpace(k)))
		}
		return &allowedTopicsGuard{guardBase: base, keywords: kw}, nil
	case "forbidden_patterns":
		if len(s.Patterns) == 0 {
			return nil, fmt.Errorf("%s guard %q: patterns are required", stage, base.name)
		}
		res := make([]*regexp.Regexp, 0, len(s.Patterns))
		for _, pat := range s.Patterns {
			re, err := regexp.Compile(`(?i)\b(?:` + pat + `)\b`)
			if err != nil {
				return nil, fmt.Errorf("%s guard %q: pattern %q: %w", stage, base.name, pat, err)
			}
			res = append(res, re)
		}
		return &forbiddenPatternsGuard{guardBase: base, patterns: res}, nil
	case "refusal":
		phrases := make([]string, 0, len(s.Phrases))
		for _, ph := range s.Phrases {
			phrases = append(phrases, strings.ToLower(ph))
		}
		return &refusalGuard{guardBase: base, phrases: phrases, window: s.Window}, nil
	default:
		return nil, fmt.Errorf("%s guard %q: unknown type %q", stage, base.name, s.Type)
	}
}

type guardBase struct {
	name     string
	parallel bool
	message  string
}

func (g guardBase) Name() string   { return g.name }
func (g guardBase) Parallel() bool { return g.parallel }
func (g guardBase) fail() error    { return &GuardrailError{Guard: g.name, Message: g.message} }

type nonEmptyGuard struct{ guardBase }

func (g *nonEmptyGuard) Check(_ context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return g.fail()
	}
	return nil
}

type allowedTopicsGuard struct {
	guardBase
	keywords []string
}

func (g *allowedTopicsGuard) Check(_ context.Context, text string) error {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, k := range g.keywords {
		if strings.Contains(lower, k) {
			return nil
		}
	}
	return g.fail()
}

type forbiddenPatternsGuard struct {
	guardBase
	patterns []*regexp.Regexp
}

func (g *forbiddenPatternsGuard) Check(_ context.Context, text string) error {
	for _, re := range g.patterns {
		if re.MatchString(text) {
			return g.fail()
		}
	}
	return nil
}

type refusalGuard struct {
	guardBase
	phrases []string
	window  int
}

func (g *refusalGuard) Check(_ context.Context, text string) error {
	head := strings.ToLower(strings.TrimSpace(text))
	if g.window > 0 && len(head) > g.window {
		cut := g.window
		for cut > 0 && !utf8.RuneStart(head[cut]) {
			cut--
		}
		head = head[:cut]
	}
	head = strings.ReplaceAll(head, "’", "'")
	for _, ph := range g.phrases {
		if strings.Contains(head, ph) {
			return g.fail()
		}
	}
	return nil
}
