package healthcheck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/amitmag/flowtrace/internal/config"
	"github.com/amitmag/flowtrace/pkg/args"
	"github.com/amitmag/flowtrace/pkg/cache"
	"github.com/amitmag/flowtrace/pkg/flowtrace"
)

// ComponentStatus represents the health status of one part of the pipeline.
type ComponentStatus struct {
	Name   string
	Detail string
	Status string // "ready", "empty", "disabled", "error"
	Error  string
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string
	SavedScope     string // "global" or "project"
	EffectivePath  string
	EffectiveScope string // "global" or "project"
	Renderer       ComponentStatus
	Cache          ComponentStatus
}

// HasError reports whether any component failed.
func (r *HealthCheckResult) HasError() bool {
	return r.Renderer.Status == "error" || r.Cache.Status == "error"
}

// probe exercises parsing, evaluation, and serialization in one render.
const probe = "function probe(x) {\nlet y = x;\nif (y > 0) {\ny = 0;\n} else {\ny = 1;\n}\nreturn y;\n}"

const probeDiagram = "op1=>operation: ** 1 **\ny = x\n | approved\n" +
	"cond1=>condition: ** 2 **\ny > 0 | approved\n" +
	"op2=>operation: ** 3 **\ny = 0\n | approved\n" +
	"op3=>operation: ** 4 **\ny = 1\n| else\n" +
	"st1=>start: ** 5 **\n | approved\n" +
	"op4=>operation: ** 6 **\nreturn y | approved\n" +
	"op1->cond1\ncond1(yes)->op2\nop2->st1\ncond1(no)->op3\nop2->st1\nop3->st1\nst1->op4\n"

// Check performs a health check against the given config.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use (considering priority).
func Check(ctx context.Context, cfg *config.Config, savedPath string, effectivePath string) (*HealthCheckResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	result := &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
	}

	result.Renderer = checkRenderer(ctx, cfg)
	result.Cache = checkCache(cfg)

	return result, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".flowtrace")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}

	return "project"
}

// checkRenderer renders the probe function and compares the diagram.
func checkRenderer(ctx context.Context, cfg *config.Config) ComponentStatus {
	status := ComponentStatus{
		Name:   "renderer",
		Detail: fmt.Sprintf("step limit %d", cfg.StepLimit),
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	bindings := args.New()
	bindings.Set("x", args.Scalar("1"))

	res, err := flowtrace.New(flowtrace.WithStepLimit(cfg.StepLimit)).Render(ctx, flowtrace.Request{
		Source:   []byte(probe),
		Format:   flowtrace.FormatJS,
		Bindings: bindings,
	})
	if err != nil {
		status.Status = "error"
		status.Error = fmt.Sprintf("probe render failed: %v", err)
		return status
	}
	if res.Diagram != probeDiagram {
		status.Status = "error"
		status.Error = fmt.Sprintf("probe diagram mismatch:\n%s", res.Diagram)
		return status
	}

	status.Status = "ready"
	return status
}

// checkCache verifies the diagram cache file can be decoded.
// A missing file is fine; it is created on the first build.
func checkCache(cfg *config.Config) ComponentStatus {
	status := ComponentStatus{
		Name:   "cache",
		Detail: cfg.CachePath,
	}

	if !cfg.CacheEnabled {
		status.Status = "disabled"
		return status
	}

	if _, err := os.Stat(cfg.CachePath); os.IsNotExist(err) {
		status.Status = "empty"
		return status
	}

	lru := cache.New(cache.Options[flowtrace.Result]{MaxSize: cfg.CacheMaxEntries})
	if err := cache.LoadFromFile(lru, cfg.CachePath); err != nil {
		status.Status = "error"
		status.Error = err.Error()
		return status
	}

	status.Status = "ready"
	status.Detail = fmt.Sprintf("%s (%d/%d entries)", cfg.CachePath, lru.Len(), cfg.CacheMaxEntries)
	return status
}
