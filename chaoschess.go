// Chaos Chess
//
// Regular chess plus a piece die. Rolling the die is optional: with no roll
// pending either player may make any legal move for the side to play, but
// once a roll lands only the rolled piece type may move. The die is weighted
// toward pawns (you have eight of them). If the rolled type has no legal
// move, the turn passes outright: the stored FEN is rewritten to flip the
// side to move, since no move object exists for the chess engine to apply.
//
// All legality beyond the piece gate is the chess engine's problem; the
// document only ever holds a FEN string and the pending required piece.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/notnil/chess"
)

const (
	ccDocPrefix = "chaoschess/"

	startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
)

var (
	ErrRollPending    = errors.New("a roll is already waiting on a move")
	ErrWrongPieceType = errors.New("the die says otherwise")
	ErrIllegalMove    = errors.New("illegal move")
	ErrNoPieceThere   = errors.New("no piece on that square")
	ErrBadSquare      = errors.New("bad square")
)

// pieceDie is the weighted die: pawns come up four times as often as any
// other piece, roughly matching how many of them are on the board.
var pieceDie = []chess.PieceType{
	chess.Pawn, chess.Pawn, chess.Pawn, chess.Pawn,
	chess.Knight, chess.Bishop, chess.Rook, chess.Queen, chess.King,
}

var pieceNames = map[chess.PieceType]string{
	chess.Pawn:   "pawn",
	chess.Knight: "knight",
	chess.Bishop: "bishop",
	chess.Rook:   "rook",
	chess.Queen:  "queen",
	chess.King:   "king",
}

var pieceByName = map[string]chess.PieceType{
	"pawn":   chess.Pawn,
	"knight": chess.Knight,
	"bishop": chess.Bishop,
	"rook":   chess.Rook,
	"queen":  chess.Queen,
	"king":   chess.King,
}

// ChaosChessState mirrors the shared document. RequiredPiece is "" when no
// roll is pending.
type ChaosChessState struct {
	FEN           string
	RequiredPiece string
}

func chaosChessStateFromDoc(doc Document) ChaosChessState {
	st := ChaosChessState{FEN: startFEN}
	if doc == nil {
		return st
	}
	if fen := docString(doc, "fen"); fen != "" {
		st.FEN = fen
	}
	st.RequiredPiece = docString(doc, "requiredPiece")
	return st
}

func gameFromFEN(fen string) (*chess.Game, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("bad stored position: %w", err)
	}
	return chess.NewGame(opt), nil
}

// hasMoveOfType reports whether the side to move has any legal move with a
// piece of the given type.
func hasMoveOfType(game *chess.Game, pt chess.PieceType) bool {
	for _, m := range game.ValidMoves() {
		if game.Position().Board().Piece(m.S1()).Type() == pt {
			return true
		}
	}
	return false
}

// passTurn hands the move to the other side without a move being played.
// The chess engine has no move object for "nothing happened", so the FEN is
// edited directly: flip the side to move, clear the en-passant square (it
// only lives for the one reply that just didn't happen), and bump the
// fullmove number when Black passes.
func passTurn(fen string) (string, error) {
	parts := strings.Fields(fen)
	if len(parts) != 6 {
		return "", fmt.Errorf("bad fen %q", fen)
	}

	if parts[1] == "w" {
		parts[1] = "b"
	} else {
		parts[1] = "w"
		if n, err := strconv.Atoi(parts[5]); err == nil {
			parts[5] = strconv.Itoa(n + 1)
		}
	}
	parts[3] = "-"

	return strings.Join(parts, " "), nil
}

func parseSquare(s string) (chess.Square, bool) {
	if len(s) != 2 {
		return chess.NoSquare, false
	}
	file := s[0] - 'a'
	rank := s[1] - '1'
	if file > 7 || rank > 7 {
		return chess.NoSquare, false
	}
	return chess.Square(int(rank)*8 + int(file)), true
}

type ChaosChessSession struct {
	session
}

func newChaosChessSession(store DocStore, gameID, player string) *ChaosChessSession {
	return &ChaosChessSession{session: newSession(store, ccDocPrefix+gameID, player)}
}

// RollResult reports one die roll. Passed means the rolled type had no legal
// move and the turn skipped to the other side.
type RollResult struct {
	Piece  string
	Passed bool
	State  ChaosChessState
}

// RollDice rolls the weighted die and applies it to the current position.
func (s *ChaosChessSession) RollDice() (RollResult, error) {
	return s.applyRoll(pieceDie[s.rng.Intn(len(pieceDie))])
}

// applyRoll is RollDice minus the randomness. If the rolled type has a legal
// move it becomes the required piece for the next move; otherwise the turn
// passes immediately and no requirement is stored.
func (s *ChaosChessSession) applyRoll(rolled chess.PieceType) (RollResult, error) {
	st := chaosChessStateFromDoc(s.store.ReadOnce(s.docID))
	if st.RequiredPiece != "" {
		return RollResult{}, ErrRollPending
	}

	game, err := gameFromFEN(st.FEN)
	if err != nil {
		return RollResult{}, err
	}

	res := RollResult{Piece: pieceNames[rolled]}

	if hasMoveOfType(game, rolled) {
		s.store.MergeWrite(s.docID, Document{"requiredPiece": res.Piece})
	} else {
		passed, err := passTurn(st.FEN)
		if err != nil {
			return RollResult{}, err
		}
		res.Passed = true
		s.store.MergeWrite(s.docID, Document{"fen": passed, "requiredPiece": ""})
	}

	res.State = chaosChessStateFromDoc(s.store.ReadOnce(s.docID))
	return res, nil
}

// DropPiece moves the piece on from to to. When a roll is pending the moved
// piece must match it; either way the chess engine has the final say on
// legality. An accepted move clears any pending requirement.
func (s *ChaosChessSession) DropPiece(from, to string) (ChaosChessState, error) {
	st := chaosChessStateFromDoc(s.store.ReadOnce(s.docID))

	game, err := gameFromFEN(st.FEN)
	if err != nil {
		return st, err
	}

	fromSq, ok := parseSquare(from)
	if !ok {
		return st, ErrBadSquare
	}
	if _, ok := parseSquare(to); !ok {
		return st, ErrBadSquare
	}

	piece := game.Position().Board().Piece(fromSq)
	if piece == chess.NoPiece {
		return st, ErrNoPieceThere
	}

	// The piece gate comes before engine legality so a blocked rook move
	// during a knight roll reads as the die's fault, not chess's.
	if st.RequiredPiece != "" && piece.Type() != pieceByName[st.RequiredPiece] {
		return st, ErrWrongPieceType
	}

	uci := from + to
	if piece.Type() == chess.Pawn && (to[1] == '8' || to[1] == '1') {
		uci += "q" // auto-queen
	}

	move, err := chess.UCINotation{}.Decode(game.Position(), uci)
	if err != nil {
		return st, ErrIllegalMove
	}
	if err := game.Move(move); err != nil {
		return st, ErrIllegalMove
	}

	s.store.MergeWrite(s.docID, Document{
		"fen":           game.Position().String(),
		"requiredPiece": "",
	})

	return chaosChessStateFromDoc(s.store.ReadOnce(s.docID)), nil
}

// Reset puts the board back to the opening position with no roll pending.
func (s *ChaosChessSession) Reset() ChaosChessState {
	s.store.ReplaceWrite(s.docID, Document{"fen": startFEN, "requiredPiece": ""})
	return chaosChessStateFromDoc(s.store.ReadOnce(s.docID))
}

// chaosOutcome describes a decided position ("1-0 by Checkmate"), or "" while
// play continues. Checkmate and stalemate still apply; the die never rescues
// a lost position.
func chaosOutcome(st ChaosChessState) string {
	game, err := gameFromFEN(st.FEN)
	if err != nil {
		return ""
	}
	if game.Outcome() == chess.NoOutcome {
		return ""
	}
	return fmt.Sprintf("%s by %s", game.Outcome(), game.Method())
}

// ---- transport ----

type ccIntent struct {
	Type string `json:"type"` // "roll", "move", "reset"
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

type ccStateMessage struct {
	Type          string `json:"type"` // always "state"
	FEN           string `json:"fen"`
	Turn          string `json:"turn"`
	RequiredPiece string `json:"required_piece,omitempty"`
	Outcome       string `json:"outcome,omitempty"`
}

type ccRollMessage struct {
	Type   string `json:"type"` // always "roll"
	Piece  string `json:"piece"`
	Passed bool   `json:"passed,omitempty"`
}

func ccStateMsg(st ChaosChessState) ccStateMessage {
	msg := ccStateMessage{
		Type:          "state",
		FEN:           st.FEN,
		RequiredPiece: st.RequiredPiece,
		Outcome:       chaosOutcome(st),
	}
	if game, err := gameFromFEN(st.FEN); err == nil {
		msg.Turn = game.Position().Turn().String()
	}
	return msg
}

func serveChaosChessWS(cfg *Config, store DocStore) httprouter.Handle {
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
		sess := newChaosChessSession(store, gameID, playerID)

		ctx, cancel := context.WithCancel(context.Background())
		updates, unsub := sess.Observe(ctx)

		go client.writePump()
		go func() {
			for doc := range updates {
				client.trySend(ccStateMsg(chaosChessStateFromDoc(doc)))
			}
			client.close()
		}()

		if store.ReadOnce(sess.docID) == nil {
			client.trySend(ccStateMsg(chaosChessStateFromDoc(nil)))
		}

		defer func() {
			cancel()
			unsub()
			_ = conn.Close()
		}()

		for {
			var msg ccIntent
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}

			switch msg.Type {
			case "roll":
				res, err := sess.RollDice()
				if err != nil {
					client.trySend(rejection(err))
					continue
				}
				client.trySend(ccRollMessage{Type: "roll", Piece: res.Piece, Passed: res.Passed})
			case "move":
				if _, err := sess.DropPiece(msg.From, msg.To); err != nil {
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

func registerChaosChessGame(cfg *Config, path string, mux *httprouter.Router, store DocStore) {
	mux.GET(cfg.prefix+path, redirectNewGame(cfg, cfg.prefix+path))
	mux.GET(cfg.prefix+path+"/:gameid", serveGamePage(cfg, "Chaos Chess"))
	mux.GET(cfg.prefix+path+"/:gameid/ws", serveChaosChessWS(cfg, store))
	mux.GET(cfg.prefix+path+"/:gameid/qr", qrHandler)
}
