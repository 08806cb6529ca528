package guard

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/edusuite/sage-gateway/internal/config"
)

// ToolPolicyInput is the document handed to OPA when a model asks to run a
// tool.
type ToolPolicyInput struct {
	User ToolPolicyUser `json:"user"`
	Tool string         `json:"tool"`
	Time ToolPolicyTime `json:"time"`
}

type ToolPolicyUser struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

type ToolPolicyTime struct {
	Hour int    `json:"hour"`
	Day  string `json:"day"`
}

// ToolPolicy decides per user role whether a tool may execute. With no
// bundle configured the policy is disabled and everything is allowed; once
// policies load, evaluation failures fail closed.
type ToolPolicy struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.ToolPolicyGuardConfig
}

func NewToolPolicy(cfg func() config.ToolPolicyGuardConfig) *ToolPolicy {
	return &ToolPolicy{cfg: cfg}
}

func (p *ToolPolicy) Enabled() bool { return p.cfg().Enabled }

// Load compiles all .rego modules under the bundle path.
func (p *ToolPolicy) Load() error {
	modules, err := loadRegoFiles(p.cfg().BundlePath)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files found", "path", p.cfg().BundlePath)
		return nil
	}
	return p.LoadFromModules(modules)
}

// LoadFromModules compiles policies from in-memory sources.
func (p *ToolPolicy) LoadFromModules(modules map[string]string) error {
	opts := []func(*rego.Rego){
		rego.Query("[data.sage.tools.allow, data.sage.tools.reason]"),
	}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	prepared, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	p.mu.Lock()
	p.prepared = &prepared
	p.mu.Unlock()

	slog.Info("tool policies loaded", "modules", len(modules))
	return nil
}

// Allow evaluates whether the user may run the tool. When the guard is
// disabled it always allows; when enabled without loaded policies it fails
// closed.
func (p *ToolPolicy) Allow(ctx context.Context, userID, role, tool string) error {
	if p == nil || !p.Enabled() {
		return nil
	}

	p.mu.RLock()
	prepared := p.prepared
	p.mu.RUnlock()
	if prepared == nil {
		return fmt.Errorf("no tool policies loaded")
	}

	timeout := p.cfg().EvaluationTimeout
	if timeout == 0 {
		timeout = 100 * time.Millisecond
	}
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	now := time.Now().UTC()
	results, err := prepared.Eval(evalCtx, rego.EvalInput(ToolPolicyInput{
		User: ToolPolicyUser{ID: userID, Role: role},
		Tool: tool,
		Time: ToolPolicyTime{Hour: now.Hour(), Day: now.Weekday().String()},
	}))
	if err != nil {
		return fmt.Errorf("policy evaluation: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return fmt.Errorf("no policy result")
	}

	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 2 {
		return fmt.Errorf("unexpected policy result format")
	}
	allowed, _ := arr[0].(bool)
	if !allowed {
		reason, _ := arr[1].(string)
		if reason == "" {
			reason = "denied by policy"
		}
		return fmt.Errorf("tool %q denied for role %q: %s", tool, role, reason)
	}
	return nil
}

func loadRegoFiles(dir string) (map[string]string, error) {
	modules := make(map[string]string)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".rego" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		modules[entry.Name()] = string(data)
	}
	return modules, nil
}
