// Tic-Tac-Toe
//
// One shared document per room: the board, whose turn is next, and the
// winner. The first cookie to connect claims seat A, the second seat B,
// anyone else watches. Every accepted move recomputes the win line against
// the new board and stores the result in the same write, so the persisted
// winner always equals the pure rule check. The board write is a plain
// read-modify-replace; turn alternation keeps the two writers apart.

package main

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/julienschmidt/httprouter"
)

const tttDocPrefix = "tictactoe/"

var (
	ErrNotSeated   = errors.New("you are watching, not playing")
	ErrNotYourTurn = errors.New("not your turn")
	ErrBadCell     = errors.New("cell out of range")
	ErrCellTaken   = errors.New("cell already filled")
	ErrGameOver    = errors.New("game already decided")
)

// TicTacToeState mirrors the shared document.
type TicTacToeState struct {
	Board    [9]Mark
	NextTurn Mark
	Winner   Mark
	Seats    map[string]Mark // playerID -> mark
}

// Full reports whether every cell is taken (a draw when Winner is empty).
func (st TicTacToeState) Full() bool {
	for _, c := range st.Board {
		if c == MarkNone {
			return false
		}
	}
	return true
}

func tictactoeStateFromDoc(doc Document) TicTacToeState {
	st := TicTacToeState{NextTurn: MarkA, Seats: make(map[string]Mark)}
	if doc == nil {
		return st
	}

	for i, v := range docStrings(doc["board"]) {
		if i > 8 {
			break
		}
		st.Board[i] = Mark(v)
	}
	if turn := docString(doc, "nextTurn"); turn != "" {
		st.NextTurn = Mark(turn)
	}
	st.Winner = Mark(docString(doc, "winner"))
	if seats, ok := asMap(doc["seats"]); ok {
		for player, mark := range seats {
			if m, ok := mark.(string); ok {
				st.Seats[player] = Mark(m)
			}
		}
	}
	return st
}

func tictactoeDoc(st TicTacToeState) Document {
	board := make([]string, 9)
	for i, c := range st.Board {
		board[i] = string(c)
	}
	seats := make(map[string]any, len(st.Seats))
	for player, mark := range st.Seats {
		seats[player] = string(mark)
	}
	return Document{
		"board":    stringsToAny(board),
		"nextTurn": string(st.NextTurn),
		"winner":   string(st.Winner),
		"seats":    seats,
	}
}

// TicTacToeSession is one player's handle on a room.
type TicTacToeSession struct {
	session

	mu   sync.Mutex
	seat Mark
}

func newTicTacToeSession(store DocStore, gameID, player string) *TicTacToeSession {
	return &TicTacToeSession{session: newSession(store, tttDocPrefix+gameID, player)}
}

// ClaimSeat assigns this player the first free seat, or MarkNone for a
// spectator. Reconnecting with the same cookie keeps the same seat.
func (t *TicTacToeSession) ClaimSeat() Mark {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := tictactoeStateFromDoc(t.store.ReadOnce(t.docID))
	if m, ok := st.Seats[t.player]; ok && m != MarkNone {
		t.seat = m
		return m
	}

	taken := make(map[Mark]bool, len(st.Seats))
	for _, m := range st.Seats {
		taken[m] = true
	}

	var m Mark
	switch {
	case !taken[MarkA]:
		m = MarkA
	case !taken[MarkB]:
		m = MarkB
	default:
		return MarkNone
	}

	t.seat = m
	t.store.MergeWrite(t.docID, Document{"seats": Document{t.player: string(m)}})
	return m
}

// Seat returns the seat claimed by this session, if any.
func (t *TicTacToeSession) Seat() Mark {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seat
}

// PlaceMark fills one empty cell for this player's seat, recomputes the
// winner, and replace-writes the whole document. Rejections leave shared
// state untouched.
func (t *TicTacToeSession) PlaceMark(cell int) (TicTacToeState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := tictactoeStateFromDoc(t.store.ReadOnce(t.docID))

	switch {
	case t.seat == MarkNone:
		return st, ErrNotSeated
	case st.Winner != MarkNone:
		return st, ErrGameOver
	case cell < 0 || cell > 8:
		return st, ErrBadCell
	case st.NextTurn != t.seat:
		return st, ErrNotYourTurn
	case st.Board[cell] != MarkNone:
		return st, ErrCellTaken
	}

	st.Board[cell] = t.seat
	st.Winner = winningLine(st.Board)
	if st.NextTurn == MarkA {
		st.NextTurn = MarkB
	} else {
		st.NextTurn = MarkA
	}

	t.store.ReplaceWrite(t.docID, tictactoeDoc(st))
	return st, nil
}

// Reset clears the board and winner while keeping the seats.
func (t *TicTacToeSession) Reset() TicTacToeState {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := tictactoeStateFromDoc(t.store.ReadOnce(t.docID))
	st.Board = [9]Mark{}
	st.Winner = MarkNone
	st.NextTurn = MarkA

	t.store.ReplaceWrite(t.docID, tictactoeDoc(st))
	return st
}

// ---- transport ----

type tttIntent struct {
	Type string `json:"type"` // "place", "reset"
	Cell int    `json:"cell,omitempty"`
}

type tttStateMessage struct {
	Type     string   `json:"type"` // always "state"
	Board    []string `json:"board"`
	NextTurn string   `json:"next_turn"`
	Winner   string   `json:"winner,omitempty"`
	Draw     bool     `json:"draw,omitempty"`
	Seat     string   `json:"seat,omitempty"` // this client's seat
}

func tttStateMsg(st TicTacToeState, seat Mark) tttStateMessage {
	board := make([]string, 9)
	for i, c := range st.Board {
		board[i] = string(c)
	}
	return tttStateMessage{
		Type:     "state",
		Board:    board,
		NextTurn: string(st.NextTurn),
		Winner:   string(st.Winner),
		Draw:     st.Winner == MarkNone && st.Full(),
		Seat:     string(seat),
	}
}

func serveTicTacToeWS(cfg *Config, store DocStore) httprouter.Handle {
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
		sess := newTicTacToeSession(store, gameID, playerID)
		seat := sess.ClaimSeat()

		ctx, cancel := context.WithCancel(context.Background())
		updates, unsub := sess.Observe(ctx)

		go client.writePump()
		go func() {
			for doc := range updates {
				client.trySend(tttStateMsg(tictactoeStateFromDoc(doc), seat))
			}
			client.close()
		}()

		// Spectators and fresh seats still want an initial frame even if the
		// document does not exist yet.
		if store.ReadOnce(sess.docID) == nil {
			client.trySend(tttStateMsg(tictactoeStateFromDoc(nil), seat))
		}

		defer func() {
			cancel()
			unsub()
			_ = conn.Close()
		}()

		for {
			var msg tttIntent
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}

			switch msg.Type {
			case "place":
				if _, err := sess.PlaceMark(msg.Cell); err != nil {
					client.trySend(rejection(err))
				}
			case "reset":
				sess.Reset()
			default:
				// ignore unknown types
			}
		}
	}
}

func registerTicTacToeGame(cfg *Config, path string, mux *httprouter.Router, store DocStore) {
	mux.GET(cfg.prefix+path, redirectNewGame(cfg, cfg.prefix+path))
	mux.GET(cfg.prefix+path+"/:gameid", serveGamePage(cfg, "Tic-Tac-Toe"))
	mux.GET(cfg.prefix+path+"/:gameid/ws", serveTicTacToeWS(cfg, store))
	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)
}
