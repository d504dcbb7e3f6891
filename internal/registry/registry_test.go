package registry

import (
	"testing"

	"modhub/internal/config"
	"modhub/internal/finding"
)

func entry(id string, enabled bool) *Entry {
	return &Entry{Config: config.ModuleConfigEntry{ID: id, Path: id, Enabled: enabled}}
}

func TestAddFirstWins(t *testing.T) {
	r := New()

	first := entry("notes", true)
	second := entry("notes", true)

	if !r.Add(first) {
		t.Fatal("first occurrence must register")
	}
	if r.Add(second) {
		t.Fatal("second occurrence must not register")
	}

	got, ok := r.Get("notes")
	if !ok || got != first {
		t.Error("lookup must return the first occurrence")
	}

	if r.Len() != 2 {
		t.Errorf("Len = %d, both occurrences stay in the table", r.Len())
	}

	if second.Status != StatusBlocked {
		t.Errorf("duplicate status = %s, want blocked", second.Status)
	}
	if len(second.Findings) != 1 || second.Findings[0].Kind != finding.KindDuplicateID {
		t.Errorf("duplicate findings = %+v", second.Findings)
	}
	if first.Status != StatusActive {
		t.Errorf("first occurrence status = %s, want active", first.Status)
	}
}

func TestStatusFollowsSeverity(t *testing.T) {
	tests := []struct {
		name     string
		severity finding.Severity
		want     Status
	}{
		{"light keeps active", finding.SeverityLight, StatusActive},
		{"medium keeps active", finding.SeverityMedium, StatusActive},
		{"severe blocks", finding.SeveritySevere, StatusBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := entry("m", true)
			e.Record(finding.New("m", finding.KindSelfTestFailure, tt.severity, "x"))
			if e.Status != tt.want {
				t.Errorf("status = %s, want %s", e.Status, tt.want)
			}
		})
	}
}

func TestDisabledNeverActive(t *testing.T) {
	r := New()
	e := entry("todo", false)
	r.Add(e)

	if e.Status != StatusBlocked {
		t.Errorf("disabled entry status = %s, want blocked", e.Status)
	}
	if len(e.Findings) != 0 {
		t.Errorf("disabled is not a finding: %+v", e.Findings)
	}
	if got := r.Active(); len(got) != 0 {
		t.Errorf("Active() = %d entries, want none", len(got))
	}
}

func TestActiveOrderAndExclusions(t *testing.T) {
	r := New()
	a := entry("a", true)
	b := entry("b", true)
	bDup := entry("b", true)
	c := entry("c", true)

	r.Add(a)
	r.Add(b)
	r.Add(bDup)
	r.Add(c)

	c.Record(finding.New("c", finding.KindPathTraversal, finding.SeveritySevere, "escape"))

	got := r.Active()
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Fatalf("Active() = %v, want [a b] in declaration order", ids(got))
	}
}

func TestAdvanceDefaultsAndStages(t *testing.T) {
	r := New()
	e := entry("m", true)
	r.Add(e)
	if e.Stage != StageDiscovered {
		t.Errorf("stage after Add = %s, want discovered", e.Stage)
	}
	e.Advance(StagePathValidated)
	e.Advance(StageContractValidated)
	e.Advance(StageRegistered)
	if e.Stage != StageRegistered || e.Status != StatusActive {
		t.Errorf("stage/status = %s/%s", e.Stage, e.Status)
	}
}

func ids(entries []*Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID()
	}
	return out
}
