// Word Hunt
//
// Both partners get the same scrambled base word and 60 seconds to find as
// many words inside it as they can. Submissions are validated cheapest-first:
// length, then "haven't I found this already", then the letter multiset, then
// a dictionary lookup. The dictionary fails open: if it cannot be reached the
// word is accepted anyway, flagged unverified, so a dead connection never
// blocks the round.
//
// Round end: the first client whose countdown hits zero flushes its own list,
// shows "waiting", and after a short grace pushes the round into review. The
// grace exists so the other client can land a last-moment submission before
// results are final. Countdowns are always recomputed from the shared
// startTime, never ticked blindly, so late joiners and woken tabs agree.

package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
)

const (
	whDocPrefix = "wordhunt/"

	wordHuntRound = 60 * time.Second
	wordHuntGrace = 3 * time.Second
)

type WordHuntStatus string

const (
	HuntLobby   WordHuntStatus = "lobby"
	HuntPlaying WordHuntStatus = "playing"
	HuntWaiting WordHuntStatus = "waiting"
	HuntReview  WordHuntStatus = "review"
)

var (
	ErrRoundNotLive = errors.New("no round in progress")
	ErrWordTooShort = errors.New("words need at least 3 letters")
	ErrAlreadyFound = errors.New("already found that one")
	ErrNotInLetters = errors.New("not in this round's letters")
	ErrNotAWord     = errors.New("not a real word")
)

// WordHuntState mirrors the shared document.
type WordHuntState struct {
	Status      WordHuntStatus
	Word        string
	StartTime   time.Time
	Submissions map[string][]string
}

func wordHuntStateFromDoc(doc Document) WordHuntState {
	st := WordHuntState{Status: HuntLobby, Submissions: make(map[string][]string)}
	if doc == nil {
		return st
	}

	if s := docString(doc, "status"); s != "" {
		st.Status = WordHuntStatus(s)
	}
	st.Word = docString(doc, "word")
	st.StartTime = millisToTime(docInt64(doc, "startTime"))
	if subs, ok := asMap(doc["submissions"]); ok {
		for player, words := range subs {
			st.Submissions[player] = docStrings(words)
		}
	}
	return st
}

// SubmitResult reports an accepted word. Verified is false when the word was
// accepted without a dictionary confirmation.
type SubmitResult struct {
	Word     string
	Verified bool
}

type WordHuntSession struct {
	session
	dict Dictionary

	mu        sync.Mutex
	words     []string // this round's accepted words for this player, transient
	lastStart int64    // startTime last observed, for the restart detector
}

func newWordHuntSession(store DocStore, dict Dictionary, gameID, player string) *WordHuntSession {
	return &WordHuntSession{
		session: newSession(store, whDocPrefix+gameID, player),
		dict:    dict,
	}
}

// StartRound replace-writes a fresh round: new base word, new start time,
// empty submissions. Any prior round is discarded for everyone.
func (s *WordHuntSession) StartRound() WordHuntState {
	word := pickBaseWord(s.rng)
	now := s.now()

	s.mu.Lock()
	s.words = nil
	s.lastStart = now.UnixMilli()
	s.mu.Unlock()

	s.store.ReplaceWrite(s.docID, Document{
		"status":      string(HuntPlaying),
		"word":        word,
		"startTime":   now.UnixMilli(),
		"submissions": Document{},
	})

	return wordHuntStateFromDoc(s.store.ReadOnce(s.docID))
}

// SubmitWord validates one submission and, if accepted, merge-writes only
// this player's list. Late submissions inside the grace window are still
// accepted; rejections never write.
func (s *WordHuntSession) SubmitWord(ctx context.Context, text string) (SubmitResult, error) {
	word := strings.ToLower(strings.TrimSpace(text))
	if len(word) < 3 {
		return SubmitResult{}, ErrWordTooShort
	}

	st := wordHuntStateFromDoc(s.store.ReadOnce(s.docID))
	if st.Status != HuntPlaying {
		return SubmitResult{}, ErrRoundNotLive
	}

	own := st.Submissions[s.player]

	s.mu.Lock()
	for _, found := range append(append([]string{}, own...), s.words...) {
		if strings.EqualFold(found, word) {
			s.mu.Unlock()
			return SubmitResult{}, ErrAlreadyFound
		}
	}
	s.mu.Unlock()

	if !isLetterSubset(word, st.Word) {
		return SubmitResult{}, ErrNotInLetters
	}

	verified := true
	switch s.dict.Lookup(ctx, word) {
	case WordNotFound:
		return SubmitResult{}, ErrNotAWord
	case LookupUnavailable:
		verified = false
	}

	s.mu.Lock()
	s.words = append(s.words, word)
	s.mu.Unlock()

	s.store.MergeWrite(s.docID, Document{
		"submissions": Document{s.player: stringsToAny(appendMissing(own, word))},
	})

	return SubmitResult{Word: word, Verified: verified}, nil
}

// FinalFlush merge-writes everything this session has accepted locally, in
// case an earlier optimistic write lost a race. Idempotent.
func (s *WordHuntSession) FinalFlush() {
	st := wordHuntStateFromDoc(s.store.ReadOnce(s.docID))
	list := st.Submissions[s.player]

	s.mu.Lock()
	for _, w := range s.words {
		list = appendMissing(list, w)
	}
	s.mu.Unlock()

	s.store.MergeWrite(s.docID, Document{
		"submissions": Document{s.player: stringsToAny(list)},
	})
}

// ForceReview ends the round immediately, discarding any remaining grace.
func (s *WordHuntSession) ForceReview() {
	s.store.MergeWrite(s.docID, Document{"status": string(HuntReview)})
}

// ForceReviewIfRound pushes review only if the round that scheduled it is
// still the one on the board; a restart underneath the grace timer wins.
func (s *WordHuntSession) ForceReviewIfRound(start time.Time) {
	st := wordHuntStateFromDoc(s.store.ReadOnce(s.docID))
	if st.Status == HuntReview || !st.StartTime.Equal(start) {
		return
	}
	s.store.MergeWrite(s.docID, Document{"status": string(HuntReview)})
}

// Reconcile folds a remote snapshot into the session and reports whether it
// announced a brand-new round. A changed startTime means someone restarted,
// even if stale "playing" frames are still arriving, so the local transient
// word list is cleared rather than carried into a round this client did not
// start.
func (s *WordHuntSession) Reconcile(doc Document) (WordHuntState, bool) {
	st := wordHuntStateFromDoc(doc)
	start := st.StartTime.UnixMilli()
	if st.StartTime.IsZero() {
		start = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if start == s.lastStart {
		return st, false
	}
	restarted := s.lastStart != 0
	s.lastStart = start
	s.words = nil
	return st, restarted
}

// RemainingTime derives the countdown from the shared start timestamp.
func (s *WordHuntSession) RemainingTime(st WordHuntState) time.Duration {
	if st.Status != HuntPlaying || st.StartTime.IsZero() {
		return 0
	}
	return remaining(wordHuntRound, st.StartTime, s.now())
}

func appendMissing(list []string, word string) []string {
	out := append([]string{}, list...)
	for _, w := range out {
		if strings.EqualFold(w, word) {
			return out
		}
	}
	return append(out, word)
}

// ---- transport ----

type whIntent struct {
	Type string `json:"type"` // "start_round", "submit", "force_review"
	Word string `json:"word,omitempty"`
}

type whStateMessage struct {
	Type        string              `json:"type"` // always "state"
	Status      string              `json:"status"`
	Word        string              `json:"word,omitempty"`
	RemainingMS int64               `json:"remaining_ms"`
	Submissions map[string][]string `json:"submissions"`
	Restarted   bool                `json:"restarted,omitempty"`
}

type whAcceptedMessage struct {
	Type     string `json:"type"` // always "accepted"
	Word     string `json:"word"`
	Verified bool   `json:"verified"`
}

func whStateMsg(sess *WordHuntSession, st WordHuntState, restarted bool) whStateMessage {
	return whStateMessage{
		Type:        "state",
		Status:      string(st.Status),
		Word:        st.Word,
		RemainingMS: sess.RemainingTime(st).Milliseconds(),
		Submissions: st.Submissions,
		Restarted:   restarted,
	}
}

func serveWordHuntWS(cfg *Config, store DocStore, dict Dictionary) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		gameID := ps.ByName("gameid")
		if gameID == "" {
			http.Error(w, "missing game id", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "GAMES: upgrade error: %v", err)
			return
		}

		client := newClient(conn, playerID)
		sess := newWordHuntSession(store, dict, gameID, playerID)

		ctx, cancel := context.WithCancel(context.Background())
		updates, unsub := sess.Observe(ctx)

		var latest struct {
			mu sync.Mutex
			st WordHuntState
		}

		go client.writePump()
		go func() {
			for doc := range updates {
				st, restarted := sess.Reconcile(doc)
				latest.mu.Lock()
				latest.st = st
				latest.mu.Unlock()
				client.trySend(whStateMsg(sess, st, restarted))
			}
			client.close()
		}()

		// This client's countdown. When it reaches zero the client flushes
		// its own list, then after the grace window pushes review unless the
		// round changed underneath it.
		go func() {
			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()

			var flushedStart time.Time
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					latest.mu.Lock()
					st := latest.st
					latest.mu.Unlock()

					if st.Status != HuntPlaying || st.StartTime.IsZero() {
						continue
					}
					if sess.RemainingTime(st) > 0 || st.StartTime.Equal(flushedStart) {
						continue
					}
					flushedStart = st.StartTime
					sess.FinalFlush()

					waiting := whStateMsg(sess, st, false)
					waiting.Status = string(HuntWaiting)
					client.trySend(waiting)

					start := st.StartTime
					time.AfterFunc(wordHuntGrace, func() {
						sess.ForceReviewIfRound(start)
					})
				}
			}
		}()

		if store.ReadOnce(sess.docID) == nil {
			client.trySend(whStateMsg(sess, wordHuntStateFromDoc(nil), false))
		}

		defer func() {
			cancel()
			unsub()
			_ = conn.Close()
		}()

		for {
			var msg whIntent
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}

			switch msg.Type {
			case "start_round":
				sess.StartRound()
			case "submit":
				res, err := sess.SubmitWord(ctx, msg.Word)
				if err != nil {
					client.trySend(rejection(err))
					continue
				}
				client.trySend(whAcceptedMessage{Type: "accepted", Word: res.Word, Verified: res.Verified})
			case "force_review":
				sess.ForceReview()
			default:
				// ignore unknown types
			}
		}
	}
}

func registerWordHuntGame(cfg *Config, path string, mux *httprouter.Router, store DocStore, dict Dictionary) {
	mux.GET(cfg.prefix+path, redirectNewGame(cfg, cfg.prefix+path))
	mux.GET(cfg.prefix+path+"/:gameid", serveGamePage(cfg, "Word Hunt"))
	mux.GET(cfg.prefix+path+"/:gameid/ws", serveWordHuntWS(cfg, store, dict))
	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)
}
