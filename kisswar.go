// Kiss War
//
// Ten seconds, two thumbs, one counter each. Every tap is an atomic
// field-level increment on the player's own score, so a hundred simultaneous
// taps from both phones add up to exactly a hundred. The countdown is derived
// from the shared start timestamp; whichever client notices time is up writes
// the finished status.

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

const (
	kwDocPrefix = "kisswar/"

	kissWarDuration = 10 * time.Second
)

type KissWarStatus string

const (
	KissLobby    KissWarStatus = "lobby"
	KissPlaying  KissWarStatus = "playing"
	KissFinished KissWarStatus = "finished"
)

var ErrWarNotLive = errors.New("no war in progress")

// KissWarState mirrors the shared document.
type KissWarState struct {
	Status    KissWarStatus
	Scores    map[string]int64
	StartTime time.Time
}

func kissWarStateFromDoc(doc Document) KissWarState {
	st := KissWarState{Status: KissLobby, Scores: make(map[string]int64)}
	if doc == nil {
		return st
	}

	if s := docString(doc, "status"); s != "" {
		st.Status = KissWarStatus(s)
	}
	st.StartTime = millisToTime(docInt64(doc, "startTime"))
	if scores, ok := asMap(doc["scores"]); ok {
		for player, n := range scores {
			st.Scores[player] = asInt64(n)
		}
	}
	return st
}

type KissWarSession struct {
	session
}

func newKissWarSession(store DocStore, gameID, player string) *KissWarSession {
	return &KissWarSession{session: newSession(store, kwDocPrefix+gameID, player)}
}

// StartGame replace-writes a fresh war: every player seen in the previous
// round starts back at zero, along with this player.
func (s *KissWarSession) StartGame() KissWarState {
	prev := kissWarStateFromDoc(s.store.ReadOnce(s.docID))

	scores := map[string]any{s.player: int64(0)}
	for player := range prev.Scores {
		scores[player] = int64(0)
	}

	s.store.ReplaceWrite(s.docID, Document{
		"status":    string(KissPlaying),
		"startTime": s.now().UnixMilli(),
		"scores":    scores,
	})

	return kissWarStateFromDoc(s.store.ReadOnce(s.docID))
}

// Tap registers one tap for this player. Taps outside a live war are
// rejected without writing; taps inside it are atomic increments, so
// concurrent taps from both players never lose a count.
func (s *KissWarSession) Tap() error {
	st := kissWarStateFromDoc(s.store.ReadOnce(s.docID))
	if st.Status != KissPlaying {
		return ErrWarNotLive
	}
	if remaining(kissWarDuration, st.StartTime, s.now()) <= 0 {
		return ErrWarNotLive
	}

	s.store.Increment(s.docID, "scores."+s.player, 1)
	return nil
}

// Finish marks the war over. Idempotent; a no-op unless the war is live.
func (s *KissWarSession) Finish() {
	st := kissWarStateFromDoc(s.store.ReadOnce(s.docID))
	if st.Status != KissPlaying {
		return
	}
	s.store.MergeWrite(s.docID, Document{"status": string(KissFinished)})
}

// RemainingTime derives the countdown from the shared start timestamp.
func (s *KissWarSession) RemainingTime(st KissWarState) time.Duration {
	if st.Status != KissPlaying || st.StartTime.IsZero() {
		return 0
	}
	return remaining(kissWarDuration, st.StartTime, s.now())
}

// kissWarWinner names the highest scorer, or "" on a tie (or an empty board).
func kissWarWinner(st KissWarState) string {
	var winner string
	var best int64
	tied := false
	for player, n := range st.Scores {
		switch {
		case winner == "" || n > best:
			winner, best, tied = player, n, false
		case n == best:
			tied = true
		}
	}
	if tied {
		return ""
	}
	return winner
}

// ---- transport ----

type kwIntent struct {
	Type string `json:"type"` // "start", "tap"
}

type kwStateMessage struct {
	Type        string           `json:"type"` // always "state"
	Status      string           `json:"status"`
	Scores      map[string]int64 `json:"scores"`
	RemainingMS int64            `json:"remaining_ms"`
	Winner      string           `json:"winner,omitempty"`
}

func kwStateMsg(sess *KissWarSession, st KissWarState) kwStateMessage {
	msg := kwStateMessage{
		Type:        "state",
		Status:      string(st.Status),
		Scores:      st.Scores,
		RemainingMS: sess.RemainingTime(st).Milliseconds(),
	}
	if st.Status == KissFinished {
		msg.Winner = kissWarWinner(st)
	}
	return msg
}

func serveKissWarWS(cfg *Config, store DocStore) httprouter.Handle {
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
		sess := newKissWarSession(store, gameID, playerID)

		ctx, cancel := context.WithCancel(context.Background())
		updates, unsub := sess.Observe(ctx)

		go client.writePump()
		go func() {
			for doc := range updates {
				client.trySend(kwStateMsg(sess, kissWarStateFromDoc(doc)))
			}
			client.close()
		}()

		// Whichever client's countdown hits zero first finishes the war; the
		// write is idempotent so both racing is harmless.
		go func() {
			ticker := time.NewTicker(250 * time.Millisecond)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					st := kissWarStateFromDoc(store.ReadOnce(sess.docID))
					if st.Status == KissPlaying && sess.RemainingTime(st) <= 0 {
						sess.Finish()
					}
				}
			}
		}()

		if store.ReadOnce(sess.docID) == nil {
			client.trySend(kwStateMsg(sess, kissWarStateFromDoc(nil)))
		}

		defer func() {
			cancel()
			unsub()
			_ = conn.Close()
		}()

		for {
			var msg kwIntent
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}

			switch msg.Type {
			case "start":
				sess.StartGame()
			case "tap":
				if err := sess.Tap(); err != nil {
					client.trySend(rejection(err))
				}
			default:
				// ignore unknown types
			}
		}
	}
}

func registerKissWarGame(cfg *Config, path string, mux *httprouter.Router, store DocStore) {
	mux.GET(cfg.prefix+path, redirectNewGame(cfg, cfg.prefix+path))
	mux.GET(cfg.prefix+path+"/:gameid", serveGamePage(cfg, "Kiss War"))
	mux.GET(cfg.prefix+path+"/:gameid/ws", serveKissWarWS(cfg, store))
	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)
}
