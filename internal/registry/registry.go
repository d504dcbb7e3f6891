// Package registry assembles the per-run module table. Every declared
// module gets exactly one entry recording how far it advanced through the
// pipeline and why it stopped; entries that failed a stage stay in the
// table as diagnostic records instead of disappearing. The table lives for
// one diagnostic run and is rebuilt from scratch on the next.
package registry

import (
	"sync"

	"modhub/internal/config"
	"modhub/internal/contract"
	"modhub/internal/finding"
	"modhub/internal/manifest"
)

// Status is the terminal verdict for one module in one run.
type Status string

const (
	// StatusActive modules are eligible for dynamic loading.
	StatusActive Status = "active"
	// StatusBlocked modules are surfaced for display only and are never
	// handed to the interpreter. Blocked is terminal for the run.
	StatusBlocked Status = "blocked"
)

// Stage tracks how far a module advanced through the pipeline.
type Stage string

const (
	StageDiscovered        Stage = "discovered"
	StagePathValidated     Stage = "path_validated"
	StageContractValidated Stage = "contract_validated"
	StageRegistered        Stage = "registered"
	StageSelfTested        Stage = "self_tested"
)

// SelfTestOutcome records one module's self-test result.
type SelfTestOutcome struct {
	Ran        bool   `json:"ran"`
	OK         bool   `json:"ok"`
	DurationMs int64  `json:"duration_ms"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Entry is the merged view of one declared module: config entry, manifest
// (nil when unreadable), accumulated findings, self-test outcome, and the
// stage/status pair.
type Entry struct {
	Config    config.ModuleConfigEntry `json:"config"`
	Manifest  *manifest.Manifest       `json:"manifest,omitempty"`
	Dir       string                   `json:"dir,omitempty"`
	EntryPath string                   `json:"entry_path,omitempty"`
	Findings  []finding.Finding        `json:"findings"`
	SelfTest  *SelfTestOutcome         `json:"self_test,omitempty"`
	Stage     Stage                    `json:"stage"`
	Status    Status                   `json:"status"`

	// Inspection holds what the static pass learned; it drives the
	// self-test runner and the launcher but stays out of the report JSON.
	Inspection *contract.Inspection `json:"-"`
}

// ID returns the module id the entry is keyed by.
func (e *Entry) ID() string { return e.Config.ID }

// Record appends findings to the entry and recomputes its status.
func (e *Entry) Record(fs ...finding.Finding) {
	e.Findings = append(e.Findings, fs...)
	e.recompute()
}

// Advance moves the entry to a later stage and recomputes status.
func (e *Entry) Advance(s Stage) {
	e.Stage = s
	e.recompute()
}

// recompute applies the status rule: a module is Active only with zero
// severe findings. Disabled modules are never Active regardless of
// findings; the launcher shows them as switched off rather than failed.
func (e *Entry) recompute() {
	if !e.Config.Enabled || finding.AnySevere(e.Findings) {
		e.Status = StatusBlocked
		return
	}
	e.Status = StatusActive
}

// Registry is the ordered module table for one run. Reads may come from
// the launcher while a watch-triggered rebuild constructs the next table,
// so access is guarded.
type Registry struct {
	mu      sync.RWMutex
	entries []*Entry
	byID    map[string]*Entry
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[string]*Entry)}
}

// Add appends an entry to the table. The first occurrence of an id wins
// and is registered for lookup; later occurrences are kept as diagnostic
// records, receive a DuplicateId finding, and never advance. The return
// value reports whether the entry was registered.
func (r *Registry) Add(e *Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.Stage == "" {
		e.Stage = StageDiscovered
	}
	e.recompute()
	r.entries = append(r.entries, e)
	id := e.ID()
	if _, exists := r.byID[id]; exists {
		e.Record(finding.New(id, finding.KindDuplicateID, finding.SeveritySevere,
			"module id %q is already declared earlier in the module list", id))
		return false
	}
	r.byID[id] = e
	return true
}

// Get looks up the registered (first-wins) entry for an id.
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	return e, ok
}

// Entries returns the table in declaration order, duplicates included.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Active returns the registered entries currently eligible for loading,
// in declaration order.
func (r *Registry) Active() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Entry
	for _, e := range r.entries {
		if e.Status == StatusActive && r.byID[e.ID()] == e {
			out = append(out, e)
		}
	}
	return out
}

// Len reports the number of entries, duplicates included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
