// Game session plumbing shared by all four games.
//
// A session is one client's handle on one shared game document: it applies
// that player's actions (validating with the pure rules first, writing only
// on success) and mirrors the document through Observe. Local state is always
// a cache; whatever the store pushes next wins over any optimistic guess.

package main

import (
	"context"
	"math/rand"
	"time"
)

type session struct {
	store  DocStore
	docID  string
	player string

	// now and rng are injection points so round timing and dice rolls are
	// deterministic under test.
	now func() time.Time
	rng *rand.Rand
}

func newSession(store DocStore, docID, player string) session {
	return session{
		store:  store,
		docID:  docID,
		player: player,
		now:    time.Now,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Observe yields a snapshot for every write to the game document, starting
// with the current one. The returned cancel func (or ctx cancellation) tears
// the subscription down; callers must do one of the two on every exit path.
func (s *session) Observe(ctx context.Context) (<-chan Document, func()) {
	return s.store.Subscribe(ctx, s.docID)
}

// remaining derives the time left in a round of length d from its absolute
// start. Countdowns are always recomputed this way rather than ticked
// locally, so a client joining mid-round or waking from a suspend lands on
// the right number.
func remaining(d time.Duration, start, now time.Time) time.Duration {
	left := d - now.Sub(start)
	if left < 0 {
		return 0
	}
	return left
}

// ---- document field helpers ----

func docString(doc Document, key string) string {
	s, _ := doc[key].(string)
	return s
}

func docInt64(doc Document, key string) int64 {
	return asInt64(doc[key])
}

// docStrings flattens a stored list field back into []string.
func docStrings(v any) []string {
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func stringsToAny(list []string) []any {
	out := make([]any, len(list))
	for i, s := range list {
		out[i] = s
	}
	return out
}

func millisToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
