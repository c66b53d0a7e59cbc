package aicore

import (
	"sync"

	"github.com/recipe-core/engine/internal/config"
	rerrors "github.com/recipe-core/engine/internal/errors"
	"github.com/recipe-core/engine/internal/recipe"
)

// CostTracker maintains running token and USD totals across a run's AI
// calls and enforces configured budget ceilings (§4.7). Guarded by a mutex
// since AI steps in the same DAG batch run concurrently, even though each
// individual update is logically serial from that step's point of view.
type CostTracker struct {
	mu         sync.Mutex
	cfg        *config.Config
	entries    []recipe.CostEntry
	totalUsd   float64
	warnedSoft bool
}

func NewCostTracker(cfg *config.Config) *CostTracker {
	return &CostTracker{cfg: cfg}
}

// CalculateCost prices one call using the configured pricing table;
// unknown models cost 0 (§4.7).
func (t *CostTracker) CalculateCost(model string, inputTokens, outputTokens int) float64 {
	price := t.cfg.PriceFor(model)
	return float64(inputTokens)/1000*price.InputPerKTokens + float64(outputTokens)/1000*price.OutputPerKTokens
}

// CheckBudget fails with AI_BUDGET_EXCEEDED if a prospective cost would push
// the running total past the hard ceiling, and logs a warning exactly once
// the first time the soft ceiling is crossed.
func (t *CostTracker) CheckBudget(prospectiveUsd float64, logger recipe.Logger) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	projected := t.totalUsd + prospectiveUsd
	if t.cfg.AI.MaxBudgetUsd > 0 && projected > t.cfg.AI.MaxBudgetUsd {
		return rerrors.AIBudgetExceeded(projected, t.cfg.AI.MaxBudgetUsd)
	}
	if !t.warnedSoft && t.cfg.AI.SoftBudgetUsd > 0 && projected > t.cfg.AI.SoftBudgetUsd {
		t.warnedSoft = true
		if logger != nil {
			logger.Warn("ai cost approaching budget", "projected_usd", projected, "soft_limit_usd", t.cfg.AI.SoftBudgetUsd)
		}
	}
	return nil
}

// Record appends one AI call's accounting entry and updates the running
// total after a successful generate.
func (t *CostTracker) Record(stepName, model string, inputTokens, outputTokens, retryAttempts int) recipe.CostEntry {
	cost := t.CalculateCost(model, inputTokens, outputTokens)

	t.mu.Lock()
	defer t.mu.Unlock()
	entry := recipe.CostEntry{
		StepName:      stepName,
		Model:         model,
		InputTokens:   inputTokens,
		OutputTokens:  outputTokens,
		CostUsd:       cost,
		RetryAttempts: retryAttempts,
	}
	t.entries = append(t.entries, entry)
	t.totalUsd += cost
	return entry
}

// Report snapshots the accumulated entries for attachment to a RunResult.
func (t *CostTracker) Report() *recipe.CostReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]recipe.CostEntry, len(t.entries))
	copy(out, t.entries)
	return &recipe.CostReport{Entries: out, TotalCostUsd: t.totalUsd}
}
