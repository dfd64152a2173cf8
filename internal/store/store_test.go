package store

import (
	"context"
	"testing"
)

func TestMemoryPutIfAbsentFirstWriterWins(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()

	ok, err := m.PutIfAbsent(ctx, "a:token", "one")
	if err != nil || !ok {
		t.Fatalf("expected first write to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = m.PutIfAbsent(ctx, "a:token", "two")
	if err != nil || ok {
		t.Fatalf("expected second write to be refused, ok=%v err=%v", ok, err)
	}
	v, found, _ := m.Get(ctx, "a:token")
	if !found || v != "one" {
		t.Fatalf("expected stored value one, got %q (found=%v)", v, found)
	}
}

func TestMemoryListAndDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := NewMemory()
	_, _ = m.PutIfAbsent(ctx, "b:token", "2")
	_, _ = m.PutIfAbsent(ctx, "a:token", "1")
	_, _ = m.PutIfAbsent(ctx, "other", "x")

	entries, err := m.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 || entries[0].Key != "a:token" {
		t.Fatalf("unexpected entries %#v", entries)
	}

	if err := m.Delete(ctx, "a:token"); err != nil {
		t.Fatal(err)
	}
	if _, found, _ := m.Get(ctx, "a:token"); found {
		t.Fatal("expected key to be deleted")
	}
}
