package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeDict answers from a fixed table and treats unknown words as found.
type fakeDict map[string]LookupResult

func (d fakeDict) Lookup(_ context.Context, word string) LookupResult {
	if r, ok := d[word]; ok {
		return r
	}
	return WordFound
}

func playingRound(store DocStore, word string, start time.Time) {
	store.ReplaceWrite(whDocPrefix+"g", Document{
		"status":      string(HuntPlaying),
		"word":        word,
		"startTime":   start.UnixMilli(),
		"submissions": Document{},
	})
}

func TestSubmitWordValidation(t *testing.T) {
	store := newMemStore(0)
	dict := fakeDict{"tion": WordNotFound, "pit": LookupUnavailable}
	sess := newWordHuntSession(store, dict, "g", "alice")

	now := time.Now()
	sess.now = func() time.Time { return now }
	playingRound(store, "relationship", now)

	ctx := context.Background()

	if _, err := sess.SubmitWord(ctx, "hi"); !errors.Is(err, ErrWordTooShort) {
		t.Errorf("two letters = %v, want ErrWordTooShort", err)
	}

	res, err := sess.SubmitWord(ctx, "  SHIP  ")
	if err != nil {
		t.Fatalf("ship: %v", err)
	}
	if res.Word != "ship" || !res.Verified {
		t.Errorf("ship = %+v, want verified lowercase", res)
	}

	if _, err := sess.SubmitWord(ctx, "ship"); !errors.Is(err, ErrAlreadyFound) {
		t.Errorf("duplicate = %v, want ErrAlreadyFound", err)
	}
	if _, err := sess.SubmitWord(ctx, "ships"); !errors.Is(err, ErrNotInLetters) {
		t.Errorf("extra s = %v, want ErrNotInLetters", err)
	}
	if _, err := sess.SubmitWord(ctx, "tion"); !errors.Is(err, ErrNotAWord) {
		t.Errorf("non-word = %v, want ErrNotAWord", err)
	}

	// Dictionary outage fails open: accepted but unverified.
	res, err = sess.SubmitWord(ctx, "pit")
	if err != nil {
		t.Fatalf("pit during outage: %v", err)
	}
	if res.Verified {
		t.Error("pit should be unverified during outage")
	}

	st := wordHuntStateFromDoc(store.ReadOnce(whDocPrefix + "g"))
	if got := st.Submissions["alice"]; len(got) != 2 {
		t.Errorf("alice's list = %v, want exactly [ship pit]", got)
	}
}

func TestSubmitOutsideRound(t *testing.T) {
	store := newMemStore(0)
	sess := newWordHuntSession(store, fakeDict{}, "g", "alice")

	if _, err := sess.SubmitWord(context.Background(), "ship"); !errors.Is(err, ErrRoundNotLive) {
		t.Errorf("lobby submit = %v, want ErrRoundNotLive", err)
	}

	store.ReplaceWrite(whDocPrefix+"g", Document{"status": string(HuntReview), "word": "relationship"})
	if _, err := sess.SubmitWord(context.Background(), "ship"); !errors.Is(err, ErrRoundNotLive) {
		t.Errorf("review submit = %v, want ErrRoundNotLive", err)
	}
}

func TestSubmissionsDontClobberPartner(t *testing.T) {
	store := newMemStore(0)
	alice := newWordHuntSession(store, fakeDict{}, "g", "alice")
	bob := newWordHuntSession(store, fakeDict{}, "g", "bob")

	playingRound(store, "relationship", time.Now())

	ctx := context.Background()
	if _, err := alice.SubmitWord(ctx, "ship"); err != nil {
		t.Fatal(err)
	}
	if _, err := bob.SubmitWord(ctx, "pit"); err != nil {
		t.Fatal(err)
	}
	if _, err := alice.SubmitWord(ctx, "lion"); err != nil {
		t.Fatal(err)
	}

	st := wordHuntStateFromDoc(store.ReadOnce(whDocPrefix + "g"))
	if got := st.Submissions["alice"]; len(got) != 2 {
		t.Errorf("alice = %v, want 2 words", got)
	}
	if got := st.Submissions["bob"]; len(got) != 1 || got[0] != "pit" {
		t.Errorf("bob = %v, want [pit]", got)
	}
}

func TestRemainingTimeFromSharedStart(t *testing.T) {
	store := newMemStore(0)
	sess := newWordHuntSession(store, fakeDict{}, "g", "late-joiner")

	now := time.Now()
	sess.now = func() time.Time { return now }

	// Round started 40 seconds ago; a fresh subscriber lands on 20s left,
	// not a full 60.
	playingRound(store, "relationship", now.Add(-40*time.Second))
	st := wordHuntStateFromDoc(store.ReadOnce(whDocPrefix + "g"))
	if got := sess.RemainingTime(st); got != 20*time.Second {
		t.Errorf("remaining = %v, want 20s", got)
	}

	// Long past the end: clamped at zero, never negative.
	playingRound(store, "relationship", now.Add(-2*time.Minute))
	st = wordHuntStateFromDoc(store.ReadOnce(whDocPrefix + "g"))
	if got := sess.RemainingTime(st); got != 0 {
		t.Errorf("remaining = %v, want 0", got)
	}
}

func TestStartRound(t *testing.T) {
	store := newMemStore(0)
	sess := newWordHuntSession(store, fakeDict{}, "g", "alice")

	now := time.Now()
	sess.now = func() time.Time { return now }

	st := sess.StartRound()
	if st.Status != HuntPlaying {
		t.Errorf("status = %q, want playing", st.Status)
	}
	if st.StartTime.UnixMilli() != now.UnixMilli() {
		t.Errorf("startTime = %v, want %v", st.StartTime, now)
	}
	found := false
	for _, w := range baseWords {
		if w == st.Word {
			found = true
		}
	}
	if !found {
		t.Errorf("word %q not from the base list", st.Word)
	}
	if len(st.Submissions) != 0 {
		t.Errorf("fresh round has submissions: %v", st.Submissions)
	}
}

func TestReconcileDetectsRestart(t *testing.T) {
	store := newMemStore(0)
	sess := newWordHuntSession(store, fakeDict{}, "g", "alice")

	now := time.Now()
	sess.now = func() time.Time { return now }
	sess.StartRound()

	sess.mu.Lock()
	sess.words = []string{"ion"}
	sess.mu.Unlock()

	// Same round arriving again is not a restart.
	_, restarted := sess.Reconcile(store.ReadOnce(whDocPrefix + "g"))
	if restarted {
		t.Error("same startTime flagged as restart")
	}

	// Partner restarts: new startTime means the local transient list must go.
	playingRound(store, "butterflies", now.Add(5*time.Second))
	_, restarted = sess.Reconcile(store.ReadOnce(whDocPrefix + "g"))
	if !restarted {
		t.Error("new startTime not flagged as restart")
	}

	sess.mu.Lock()
	local := len(sess.words)
	sess.mu.Unlock()
	if local != 0 {
		t.Errorf("local words survived restart: %d", local)
	}
}

func TestForceReviewIfRound(t *testing.T) {
	store := newMemStore(0)
	sess := newWordHuntSession(store, fakeDict{}, "g", "alice")

	now := time.Now()
	sess.now = func() time.Time { return now }
	oldStart := now
	playingRound(store, "relationship", oldStart)

	// Round was restarted before the grace timer fired: the stale timer must
	// not end the new round.
	newStart := now.Add(10 * time.Second)
	playingRound(store, "butterflies", newStart)
	sess.ForceReviewIfRound(oldStart)

	st := wordHuntStateFromDoc(store.ReadOnce(whDocPrefix + "g"))
	if st.Status != HuntPlaying {
		t.Errorf("stale grace timer ended the new round: %q", st.Status)
	}

	// Matching start pushes review.
	sess.ForceReviewIfRound(millisToTime(newStart.UnixMilli()))
	st = wordHuntStateFromDoc(store.ReadOnce(whDocPrefix + "g"))
	if st.Status != HuntReview {
		t.Errorf("status = %q, want review", st.Status)
	}
}

func TestFinalFlushMergesLocalWords(t *testing.T) {
	store := newMemStore(0)
	sess := newWordHuntSession(store, fakeDict{}, "g", "alice")

	playingRound(store, "relationship", time.Now())
	store.MergeWrite(whDocPrefix+"g", Document{
		"submissions": Document{"alice": []any{"ship"}},
	})

	sess.mu.Lock()
	sess.words = []string{"ship", "pit"}
	sess.mu.Unlock()

	sess.FinalFlush()

	st := wordHuntStateFromDoc(store.ReadOnce(whDocPrefix + "g"))
	got := st.Submissions["alice"]
	if len(got) != 2 || got[0] != "ship" || got[1] != "pit" {
		t.Errorf("flushed list = %v, want [ship pit]", got)
	}
}
