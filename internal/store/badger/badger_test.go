package badger

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
)

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	s, err := Open(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestPutIfAbsentAndGet(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, "")
	defer s.Close()
	ctx := context.Background()

	ok, err := s.PutIfAbsent(ctx, "acct:token", "secret")
	if err != nil || !ok {
		t.Fatalf("expected insert, ok=%v err=%v", ok, err)
	}
	ok, err = s.PutIfAbsent(ctx, "acct:token", "other")
	if err != nil || ok {
		t.Fatalf("expected existing key to be kept, ok=%v err=%v", ok, err)
	}
	v, found, err := s.Get(ctx, "acct:token")
	if err != nil || !found || v != "secret" {
		t.Fatalf("unexpected get result %q found=%v err=%v", v, found, err)
	}
	if _, found, err := s.Get(ctx, "missing"); err != nil || found {
		t.Fatalf("expected missing key, found=%v err=%v", found, err)
	}
}

func TestConcurrentPutIfAbsentSingleWinner(t *testing.T) {
	t.Parallel()

	s := openTestStore(t, "")
	defer s.Close()
	ctx := context.Background()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.PutIfAbsent(ctx, "race:token", string(rune('a'+i)))
			if err != nil {
				t.Errorf("put: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one winner, got %d", got)
	}
}

func TestListDeleteAndReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	s := openTestStore(t, dir)
	for _, k := range []string{"b:token", "a:token", "c"} {
		if _, err := s.PutIfAbsent(ctx, k, "v"); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Delete(ctx, "c"); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s = openTestStore(t, dir)
	defer s.Close()
	entries, err := s.List(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Key != "a:token" || entries[1].Key != "b:token" {
		t.Fatalf("unexpected entries after reopen %#v", entries)
	}
	entries, err = s.List(ctx, "b")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one prefixed entry, got %#v", entries)
	}
}
