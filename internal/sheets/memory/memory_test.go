package memory

import (
	"context"
	"testing"

	"github.com/vickym250/jnschool/internal/core"
	ports "github.com/vickym250/jnschool/internal/sheets"
)

func TestRegisterAppendAndIndex(t *testing.T) {
	r := New()
	ctx := context.Background()

	ref, err := r.AppendCollection(ctx, ports.CollectionEntry{Key: "admit:s1:2025-26", Session: "2025-26"})
	if err != nil || ref != "mem:1" {
		t.Fatalf("unexpected append: ref=%q err=%v", ref, err)
	}
	if ok, _ := r.HasCollection(ctx, "2025-26", "admit:s1:2025-26"); !ok {
		t.Error("key should be indexed")
	}
	if ok, _ := r.HasCollection(ctx, "2026-27", "admit:s1:2025-26"); ok {
		t.Error("keys are scoped by session")
	}
	if _, err := r.AppendCollection(ctx, ports.CollectionEntry{Session: "2025-26"}); err == nil {
		t.Error("entry without key should be rejected")
	}
	if got := len(r.Entries()); got != 1 {
		t.Errorf("Entries() len = %d, want 1", got)
	}
}

func TestRegisterOverviewReplaced(t *testing.T) {
	r := New()
	ctx := context.Background()
	_ = r.WriteOverview(ctx, core.MonthOverview{Session: "2025-26", Month: core.April})
	_ = r.WriteOverview(ctx, core.MonthOverview{Session: "2025-26", Month: core.May})

	ov, ok := r.Overview("2025-26")
	if !ok || ov.Month != core.May {
		t.Fatalf("Overview() = %+v, %v", ov, ok)
	}
}
