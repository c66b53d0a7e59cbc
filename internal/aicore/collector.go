// Package aicore implements the Two-Pass AI Subsystem (§4.6): the
// Collector that accumulates `@ai` template blocks during Pass 1, the
// Prompt Assembler that turns them into a self-contained markdown document,
// the AI-tool prompt pipeline for `ai`-kind steps, transport resolution,
// and the Cost Tracker.
package aicore

import (
	"sync"

	"github.com/recipe-core/engine/internal/recipe"
)

// Collector accumulates `@ai` blocks discovered while rendering templates in
// collect mode (§4.6.1). The spec describes it as a process-scoped
// singleton; per the redesign note in §9, state is instead constructed once
// per run and handed to the tools through tools.Dependencies, so nested
// recipes run by the Recipe tool share that one instance, without a
// package-level global. Mirrors the teacher's
// mutex-guarded single-writer state (orchestrator.Orchestrator's wfMu).
type Collector struct {
	mu             sync.Mutex
	collectMode    bool
	globalContexts []string
	entries        map[string]*recipe.AiBlockEntry
	order          []string
}

// NewCollector builds a Collector for one run. collectMode fixes whether
// the Template tool's `@ai` tag handler records blocks (Pass 1) or
// substitutes answers (Pass 2). The run command builds a fresh one for each
// invocation, and each pass is a separate invocation, so every pass starts
// with an empty Collector.
func NewCollector(collectMode bool) *Collector {
	return &Collector{
		collectMode: collectMode,
		entries:     make(map[string]*recipe.AiBlockEntry),
	}
}

// CollectMode reports whether this run is Pass 1 (collecting) or Pass 2
// (answering).
func (c *Collector) CollectMode() bool {
	return c.collectMode
}

// RegisterAiBlock records or updates one `@ai` block's prompt, output
// description, and examples, keyed by its unique key.
func (c *Collector) RegisterAiBlock(key, prompt, outputDescription string, examples []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entryLocked(key)
	e.Prompt = prompt
	e.OutputDescription = outputDescription
	e.Examples = examples
}

// AddContext appends a context string to a block's own context list, or to
// the collector's global contexts when key is "".
func (c *Collector) AddContext(key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key == "" {
		c.globalContexts = append(c.globalContexts, text)
		return
	}
	e := c.entryLocked(key)
	e.Contexts = append(e.Contexts, text)
}

func (c *Collector) entryLocked(key string) *recipe.AiBlockEntry {
	e, ok := c.entries[key]
	if !ok {
		e = &recipe.AiBlockEntry{Key: key}
		c.entries[key] = e
		c.order = append(c.order, key)
	}
	return e
}

// HasEntries reports whether any `@ai` block has been registered this run.
func (c *Collector) HasEntries() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries) > 0
}

// GetEntries returns collected entries in first-registration order.
func (c *Collector) GetEntries() []recipe.AiBlockEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]recipe.AiBlockEntry, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, *c.entries[k])
	}
	return out
}

// GlobalContexts returns context strings registered with a null key.
func (c *Collector) GlobalContexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.globalContexts))
	copy(out, c.globalContexts)
	return out
}

// Clear resets the collector to empty. The engine itself does not call it;
// a fresh Collector per run already starts empty.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globalContexts = nil
	c.entries = make(map[string]*recipe.AiBlockEntry)
	c.order = nil
}
