package opa

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// DecisionQuery is the rule evaluated for every app.
const DecisionQuery = "data.focuspact.restriction.decision"

//go:embed policies/*.rego
var policyFS embed.FS

// Engine evaluates the restriction policy with a query prepared once at
// construction. Eval is safe for concurrent use.
type Engine struct {
	logger  zerolog.Logger
	modules map[string]*ast.Module
	query   rego.PreparedEvalQuery
}

// NewEngine parses the embedded policy modules and prepares the decision query.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		logger:  logger.With().Str("component", "opa").Logger(),
		modules: make(map[string]*ast.Module),
	}

	if err := e.loadPolicies(); err != nil {
		return nil, fmt.Errorf("failed to load policies: %w", err)
	}
	if err := e.prepareQuery(); err != nil {
		return nil, err
	}

	e.logger.Debug().Int("modules", len(e.modules)).Msg("OPA engine initialized")
	return e, nil
}

func (e *Engine) loadPolicies() error {
	files, err := fs.Glob(policyFS, "policies/*.rego")
	if err != nil {
		return fmt.Errorf("failed to glob policy files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no embedded policy files")
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := policyFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read policy file %s: %w", file, err)
		}

		module, err := ast.ParseModule(path.Base(file), string(content))
		if err != nil {
			return fmt.Errorf("failed to parse policy file %s: %w", file, err)
		}

		e.modules[file] = module
		e.logger.Debug().Str("file", file).Str("package", module.Package.Path.String()).Msg("Loaded policy module")
	}
	return nil
}

func (e *Engine) prepareQuery() error {
	opts := []func(*rego.Rego){rego.Query(DecisionQuery)}
	for _, module := range e.modules {
		opts = append(opts, rego.ParsedModule(module))
	}

	query, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("failed to prepare decision query: %w", err)
	}
	e.query = query
	return nil
}

// Result is the policy's restriction decision for one app.
type Result struct {
	TimeLimitExceeded    bool `json:"time_limit_exceeded"`
	SessionLimitExceeded bool `json:"session_limit_exceeded"`
	IsRestricted         bool `json:"is_restricted"`
}

// Eval runs the decision query against input.
func (e *Engine) Eval(ctx context.Context, input map[string]interface{}) (*Result, error) {
	startTime := time.Now()

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("decision query evaluation failed: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, fmt.Errorf("no result from decision query")
	}

	resultBytes, err := json.Marshal(results[0].Expressions[0].Value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decision: %w", err)
	}

	var result Result
	if err := json.Unmarshal(resultBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decision: %w", err)
	}

	e.logger.Trace().Dur("duration", time.Since(startTime)).Msg("Decision query evaluated")
	return &result, nil
}
