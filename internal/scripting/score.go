// Package scripting evaluates a user-supplied Go snippet that scores a
// candidate material for the Priority Sorter's custom:<id> strategy,
// using a sandboxed traefik/yaegi interpreter the same way the teacher
// sandboxes generated tool code: stdlib-only symbols, no filesystem or
// network access, and a hard execution timeout.
package scripting

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/butianzheng/hot-rolling-finish-aps-sub000/internal/logging"
)

// ScoreInputs carries the per-candidate values a custom strategy script
// may use, mirroring the linear formula's inputs from spec.md §4.3.
type ScoreInputs struct {
	UrgencyRank    int
	CampaignFitT   float64
	StockAgeDays   int
	DueDateSlackDays int
	RiskPenalty    float64
}

var allowedImports = map[string]bool{
	"strings": true, "strconv": true, "fmt": true, "math": true, "sort": true, "time": true,
}

// Scorer evaluates a compiled func Score(c ScoreInputs) float64 snippet.
// A zero-value Scorer (no script compiled) always falls back.
type Scorer struct {
	fn func(ScoreInputs) float64
}

// Compile parses and evaluates script, expecting it to define
// `func Score(c scripting.ScoreInputs) float64`. It never returns a
// usable Scorer for anything but a clean compile: callers should use the
// built-in linear formula (and log a warning) on error.
func Compile(script string) (*Scorer, error) {
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("empty score script")
	}
	if err := validateImports(script); err != nil {
		return nil, err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("load stdlib symbols: %w", err)
	}
	if err := i.Use(interp.Exports{
		"scripting/scripting": {
			"ScoreInputs": reflect.ValueOf((*ScoreInputs)(nil)),
		},
	}); err != nil {
		return nil, fmt.Errorf("export ScoreInputs: %w", err)
	}

	full := wrap(script)
	if _, err := i.Eval(full); err != nil {
		return nil, fmt.Errorf("evaluate score script: %w", err)
	}

	v, err := i.Eval("main.Score")
	if err != nil {
		return nil, fmt.Errorf("Score function not found: %w", err)
	}
	fn, ok := v.Interface().(func(ScoreInputs) float64)
	if !ok {
		return nil, fmt.Errorf("Score has incorrect signature (expected func(ScoreInputs) float64)")
	}
	return &Scorer{fn: fn}, nil
}

func wrap(script string) string {
	if strings.Contains(script, "package main") {
		return script
	}
	return fmt.Sprintf("package main\n\nimport . \"scripting\"\n\n%s\n", script)
}

func validateImports(code string) error {
	lines := strings.Split(code, "\n")
	inBlock := false
	var forbidden []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && strings.HasPrefix(trimmed, ")"):
			inBlock = false
		case inBlock:
			pkg := strings.Trim(trimmed, `"`)
			if pkg != "" && !allowedImports[pkg] {
				forbidden = append(forbidden, pkg)
			}
		case strings.HasPrefix(trimmed, "import "):
			pkg := strings.Trim(strings.TrimPrefix(trimmed, "import "), `"`)
			if !allowedImports[pkg] {
				forbidden = append(forbidden, pkg)
			}
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports in score script: %v", forbidden)
	}
	return nil
}

// Score evaluates the compiled script with a timeout, matching the
// sandboxing posture of a bounded interpreter call.
func (s *Scorer) Score(ctx context.Context, in ScoreInputs) (float64, error) {
	resultCh := make(chan float64, 1)
	go func() {
		resultCh <- s.fn(in)
	}()
	select {
	case r := <-resultCh:
		return r, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// EvalWithFallbackScorer evaluates an already-compiled Scorer for a single
// candidate, falling back to linear when evaluation exceeds its 5-second
// timeout; a panic inside the script is not recovered. Callers that score many candidates per recalc run must compile
// once via Compile and reuse the same *Scorer here, rather than calling
// EvalWithFallback (which recompiles) per candidate.
func EvalWithFallbackScorer(scorer *Scorer, in ScoreInputs, linear func(ScoreInputs) float64) float64 {
	if scorer == nil {
		return linear(in)
	}
	log := logging.Get(logging.CategoryScripting)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := scorer.Score(ctx, in)
	if err != nil {
		log.Warn("score script evaluation failed, using linear fallback: %v", err)
		return linear(in)
	}
	return v
}

// EvalWithFallback compiles script once and evaluates it for a single
// input, falling back to linear when compile or evaluation fails. It
// logs the failure and never propagates an error to the caller — a bad
// custom-strategy script must never abort a recalc run.
func EvalWithFallback(script string, in ScoreInputs, linear func(ScoreInputs) float64) float64 {
	log := logging.Get(logging.CategoryScripting)
	scorer, err := Compile(script)
	if err != nil {
		log.Warn("score script compile failed, using linear fallback: %v", err)
		return linear(in)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	v, err := scorer.Score(ctx, in)
	if err != nil {
		log.Warn("score script evaluation failed, using linear fallback: %v", err)
		return linear(in)
	}
	return v
}
