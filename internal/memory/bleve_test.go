package memory

import (
	"context"
	"testing"
)

func newTestStore(t *testing.T) *BleveStore {
	t.Helper()
	store, err := OpenBleve("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Save(ctx, Note{
		Tenant:  "acme",
		Content: "we decided to deploy on tuesdays",
		Source:  "conv-1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected a generated id")
	}

	results, err := store.Search(ctx, "acme", "deploy", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d", len(results))
	}
	if results[0].Content != "we decided to deploy on tuesdays" {
		t.Errorf("content = %q", results[0].Content)
	}
	if results[0].Score <= 0 || results[0].Score > 1 {
		t.Errorf("score = %v, want normalized into (0, 1]", results[0].Score)
	}
}

func TestTenantNamespaceIsolation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Save(ctx, Note{Tenant: "acme", Content: "acme deploy schedule"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save(ctx, Note{Tenant: "globex", Content: "globex deploy schedule"}); err != nil {
		t.Fatal(err)
	}

	acme, err := store.Search(ctx, "acme", "deploy schedule", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range acme {
		if r.Content != "acme deploy schedule" {
			t.Errorf("acme search leaked %q", r.Content)
		}
	}
	if len(acme) != 1 {
		t.Errorf("acme results = %d", len(acme))
	}

	stranger, err := store.Search(ctx, "initech", "deploy schedule", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(stranger) != 0 {
		t.Errorf("unknown tenant got %d results", len(stranger))
	}
}

func TestSaveRequiresTenant(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Save(context.Background(), Note{Content: "orphan"}); err == nil {
		t.Error("expected an error for a note without a tenant")
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Save(ctx, Note{Tenant: "acme", Content: "temporary note"})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	results, err := store.Search(ctx, "acme", "temporary", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("deleted note still found: %+v", results)
	}
}
