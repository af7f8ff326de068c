package main

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMergeWritePreservesSiblings(t *testing.T) {
	s := newMemStore(0)

	s.MergeWrite("g", Document{"submissions": Document{"alice": []any{"ship"}}})
	s.MergeWrite("g", Document{"submissions": Document{"bob": []any{"pit"}}})

	doc := s.ReadOnce("g")
	subs, ok := asMap(doc["submissions"])
	if !ok {
		t.Fatalf("submissions missing: %v", doc)
	}
	if got := docStrings(subs["alice"]); len(got) != 1 || got[0] != "ship" {
		t.Errorf("alice = %v, want [ship]", got)
	}
	if got := docStrings(subs["bob"]); len(got) != 1 || got[0] != "pit" {
		t.Errorf("bob = %v, want [pit]", got)
	}
}

func TestReplaceWriteDiscardsOldFields(t *testing.T) {
	s := newMemStore(0)

	s.MergeWrite("g", Document{"old": "value", "status": "playing"})
	s.ReplaceWrite("g", Document{"status": "lobby"})

	doc := s.ReadOnce("g")
	if _, ok := doc["old"]; ok {
		t.Errorf("old field survived replace: %v", doc)
	}
	if got := docString(doc, "status"); got != "lobby" {
		t.Errorf("status = %q, want lobby", got)
	}
}

func TestReadOnceMissingDoc(t *testing.T) {
	s := newMemStore(0)
	if doc := s.ReadOnce("nope"); doc != nil {
		t.Errorf("ReadOnce(missing) = %v, want nil", doc)
	}
}

func TestSnapshotsAreIsolated(t *testing.T) {
	s := newMemStore(0)
	s.ReplaceWrite("g", Document{"nested": Document{"n": int64(1)}})

	snap := s.ReadOnce("g")
	if m, ok := asMap(snap["nested"]); ok {
		m["n"] = int64(99)
	}

	again := s.ReadOnce("g")
	m, _ := asMap(again["nested"])
	if got := asInt64(m["n"]); got != 1 {
		t.Errorf("stored value mutated through snapshot: %d", got)
	}
}

func TestConcurrentIncrementsLoseNothing(t *testing.T) {
	s := newMemStore(0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Increment("g", "scores.alice", 1)
		}()
	}
	wg.Wait()

	doc := s.ReadOnce("g")
	scores, _ := asMap(doc["scores"])
	if got := asInt64(scores["alice"]); got != 100 {
		t.Errorf("scores.alice = %d, want 100", got)
	}
}

func TestIncrementCreatesPath(t *testing.T) {
	s := newMemStore(0)
	s.Increment("g", "a.b.c", 5)
	s.Increment("g", "a.b.c", -2)

	doc := s.ReadOnce("g")
	a, _ := asMap(doc["a"])
	b, _ := asMap(a["b"])
	if got := asInt64(b["c"]); got != 3 {
		t.Errorf("a.b.c = %d, want 3", got)
	}
}

func TestSubscribeInitialAndUpdates(t *testing.T) {
	s := newMemStore(0)
	s.ReplaceWrite("g", Document{"status": "lobby"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, unsub := s.Subscribe(ctx, "g")
	defer unsub()

	select {
	case doc := <-updates:
		if got := docString(doc, "status"); got != "lobby" {
			t.Fatalf("initial snapshot status = %q, want lobby", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	s.MergeWrite("g", Document{"status": "playing"})

	select {
	case doc := <-updates:
		if got := docString(doc, "status"); got != "playing" {
			t.Fatalf("update status = %q, want playing", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no update after write")
	}
}

func TestSubscribeNoSnapshotForMissingDoc(t *testing.T) {
	s := newMemStore(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates, unsub := s.Subscribe(ctx, "nope")
	defer unsub()

	select {
	case doc := <-updates:
		t.Fatalf("unexpected snapshot for missing doc: %v", doc)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	s := newMemStore(0)
	s.ReplaceWrite("g", Document{"status": "lobby"})

	updates, unsub := s.Subscribe(context.Background(), "g")
	<-updates // drain the initial snapshot

	unsub()

	select {
	case _, ok := <-updates:
		if ok {
			t.Fatal("channel delivered after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}

	// A write after unsubscribe must not panic.
	s.MergeWrite("g", Document{"status": "playing"})
}

func TestContextCancelTearsDownSubscription(t *testing.T) {
	s := newMemStore(0)
	s.ReplaceWrite("g", Document{"status": "lobby"})

	ctx, cancel := context.WithCancel(context.Background())
	updates, _ := s.Subscribe(ctx, "g")
	<-updates

	cancel()

	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-updates:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("channel not closed after context cancel")
		}
	}
}
