// Shared game documents
//
// Every game room is backed by exactly one Document, the authoritative state
// shared by both partners. Clients never talk to each other directly: they
// write to the document and watch it, and every write (their own included) is
// pushed back out to every subscriber as a full snapshot.
//
// Semantics:
// - MergeWrite updates only the named fields, recursing into nested maps, so
//   per-player fields (word lists, tap scores) never clobber each other
// - ReplaceWrite overwrites the whole document (resets, round starts)
// - Increment is an atomic field-level add; concurrent taps lose nothing
// - Concurrent full-document writes are last-write-wins, accepted because the
//   games alternate turns by rule rather than by locking
// - Subscribers get the current snapshot on subscribe, then one snapshot per
//   write; slow subscribers are dropped rather than blocking a write
// - Documents idle longer than the configured session timeout are reaped

package main

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Document is one shared game record. Values are JSON-ish: strings, int64s,
// bools, []any, and nested maps.
type Document map[string]any

// DocStore is the contract game sessions are written against. The in-memory
// implementation below is the only one shipped, but sessions never assume
// more than this interface offers.
type DocStore interface {
	ReadOnce(id string) Document
	MergeWrite(id string, fields Document)
	ReplaceWrite(id string, doc Document)
	Increment(id string, field string, delta int64)
	Subscribe(ctx context.Context, id string) (<-chan Document, func())
}

type docSub struct {
	ch        chan Document
	closeOnce sync.Once
}

func (s *docSub) close() { s.closeOnce.Do(func() { close(s.ch) }) }

type memStore struct {
	mu         sync.Mutex
	docs       map[string]Document
	subs       map[string]map[*docSub]struct{}
	lastActive map[string]time.Time
	idle       time.Duration
}

func newMemStore(idleTimeout time.Duration) *memStore {
	s := &memStore{
		docs:       make(map[string]Document),
		subs:       make(map[string]map[*docSub]struct{}),
		lastActive: make(map[string]time.Time),
		idle:       idleTimeout,
	}
	if idleTimeout > 0 {
		go s.reaperLoop()
	}
	return s
}

// ReadOnce returns a snapshot of the document, or nil if it does not exist.
// Mutating the snapshot never affects the stored document.
func (s *memStore) ReadOnce(id string) Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil
	}
	return copyDoc(doc)
}

func (s *memStore) MergeWrite(id string, fields Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		doc = make(Document)
		s.docs[id] = doc
	}
	mergeInto(doc, fields)
	s.touchAndBroadcastLocked(id)
}

func (s *memStore) ReplaceWrite(id string, doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[id] = copyDoc(doc)
	s.touchAndBroadcastLocked(id)
}

// Increment atomically adds delta to a numeric field. The field may be a
// dotted path ("scores.krish"); missing maps along the path are created and
// a missing leaf counts as zero.
func (s *memStore) Increment(id string, field string, delta int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok {
		doc = make(Document)
		s.docs[id] = doc
	}

	parts := strings.Split(field, ".")
	m := map[string]any(doc)
	for _, p := range parts[:len(parts)-1] {
		next, ok := asMap(m[p])
		if !ok {
			next = make(map[string]any)
			m[p] = next
		}
		m = next
	}
	leaf := parts[len(parts)-1]
	m[leaf] = asInt64(m[leaf]) + delta

	s.touchAndBroadcastLocked(id)
}

// Subscribe delivers the current snapshot (if the document exists) followed by
// one snapshot per write until ctx is cancelled or the returned cancel func is
// called. Both teardown paths are safe to combine.
func (s *memStore) Subscribe(ctx context.Context, id string) (<-chan Document, func()) {
	s.mu.Lock()

	set := s.subs[id]
	if set == nil {
		set = make(map[*docSub]struct{})
		s.subs[id] = set
	}
	sub := &docSub{ch: make(chan Document, 8)}
	set[sub] = struct{}{}

	if doc, ok := s.docs[id]; ok {
		sub.ch <- copyDoc(doc)
	}
	s.lastActive[id] = time.Now()

	s.mu.Unlock()

	unsubOnce := &sync.Once{}
	unsub := func() {
		unsubOnce.Do(func() {
			s.mu.Lock()
			if set, ok := s.subs[id]; ok {
				delete(set, sub)
			}
			s.mu.Unlock()
			sub.close()
		})
	}
	go func() {
		<-ctx.Done()
		unsub()
	}()
	return sub.ch, unsub
}

func (s *memStore) touchAndBroadcastLocked(id string) {
	s.lastActive[id] = time.Now()

	set, ok := s.subs[id]
	if !ok {
		return
	}
	snapshot := s.docs[id]
	for sub := range set {
		select {
		case sub.ch <- copyDoc(snapshot):
		default:
			delete(set, sub)
			sub.close()
		}
	}
}

// reaperLoop periodically removes documents idle longer than the timeout and
// disconnects their remaining subscribers.
func (s *memStore) reaperLoop() {
	ticker := time.NewTicker(s.idle / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-s.idle)

		s.mu.Lock()
		for id, last := range s.lastActive {
			if !last.Before(cutoff) {
				continue
			}
			delete(s.docs, id)
			delete(s.lastActive, id)
			for sub := range s.subs[id] {
				sub.close()
			}
			delete(s.subs, id)
		}
		s.mu.Unlock()
	}
}

// ---- value plumbing ----

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Document:
		return map[string]any(m), true
	}
	return nil, false
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = copyValue(inner)
		}
		return out
	case Document:
		return copyValue(map[string]any(val))
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = copyValue(inner)
		}
		return out
	}
	return v
}

func copyDoc(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = copyValue(v)
	}
	return out
}

// mergeInto applies src on top of dst, recursing wherever both sides hold a
// map so sibling fields survive a partial update.
func mergeInto(dst map[string]any, src Document) {
	for k, v := range src {
		sm, srcIsMap := asMap(v)
		dm, dstIsMap := asMap(dst[k])
		if srcIsMap && dstIsMap {
			mergeInto(dm, Document(sm))
			continue
		}
		if srcIsMap {
			fresh := make(map[string]any, len(sm))
			mergeInto(fresh, Document(sm))
			dst[k] = fresh
			continue
		}
		dst[k] = copyValue(v)
	}
}
