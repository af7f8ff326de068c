package main

import (
	"errors"
	"testing"
)

func TestClaimSeatOrder(t *testing.T) {
	store := newMemStore(0)

	alice := newTicTacToeSession(store, "g", "alice")
	bob := newTicTacToeSession(store, "g", "bob")
	carol := newTicTacToeSession(store, "g", "carol")

	if got := alice.ClaimSeat(); got != MarkA {
		t.Errorf("first player seat = %q, want A", got)
	}
	if got := bob.ClaimSeat(); got != MarkB {
		t.Errorf("second player seat = %q, want B", got)
	}
	if got := carol.ClaimSeat(); got != MarkNone {
		t.Errorf("third player seat = %q, want spectator", got)
	}

	// Reconnecting with the same cookie keeps the seat.
	again := newTicTacToeSession(store, "g", "alice")
	if got := again.ClaimSeat(); got != MarkA {
		t.Errorf("reconnect seat = %q, want A", got)
	}
}

func TestPlaceMarkFullGame(t *testing.T) {
	store := newMemStore(0)

	alice := newTicTacToeSession(store, "g", "alice")
	bob := newTicTacToeSession(store, "g", "bob")
	alice.ClaimSeat()
	bob.ClaimSeat()

	// A takes the top row while B fills the middle.
	moves := []struct {
		sess *TicTacToeSession
		cell int
	}{
		{alice, 0}, {bob, 3}, {alice, 1}, {bob, 4},
	}
	for _, m := range moves {
		if _, err := m.sess.PlaceMark(m.cell); err != nil {
			t.Fatalf("PlaceMark(%d) = %v", m.cell, err)
		}
	}

	st, err := alice.PlaceMark(2)
	if err != nil {
		t.Fatalf("winning move: %v", err)
	}
	if st.Winner != MarkA {
		t.Errorf("winner = %q, want A", st.Winner)
	}

	// The persisted winner matches the pure rule check.
	persisted := tictactoeStateFromDoc(store.ReadOnce(tttDocPrefix + "g"))
	if persisted.Winner != winningLine(persisted.Board) {
		t.Errorf("persisted winner %q != recomputed %q", persisted.Winner, winningLine(persisted.Board))
	}

	// Moves after the win are rejected.
	if _, err := bob.PlaceMark(5); !errors.Is(err, ErrGameOver) {
		t.Errorf("move after win = %v, want ErrGameOver", err)
	}
}

func TestPlaceMarkRejections(t *testing.T) {
	store := newMemStore(0)

	alice := newTicTacToeSession(store, "g", "alice")
	bob := newTicTacToeSession(store, "g", "bob")
	carol := newTicTacToeSession(store, "g", "carol")
	alice.ClaimSeat()
	bob.ClaimSeat()
	carol.ClaimSeat()

	if _, err := carol.PlaceMark(0); !errors.Is(err, ErrNotSeated) {
		t.Errorf("spectator move = %v, want ErrNotSeated", err)
	}
	if _, err := bob.PlaceMark(0); !errors.Is(err, ErrNotYourTurn) {
		t.Errorf("out of turn = %v, want ErrNotYourTurn", err)
	}
	if _, err := alice.PlaceMark(9); !errors.Is(err, ErrBadCell) {
		t.Errorf("cell 9 = %v, want ErrBadCell", err)
	}
	if _, err := alice.PlaceMark(-1); !errors.Is(err, ErrBadCell) {
		t.Errorf("cell -1 = %v, want ErrBadCell", err)
	}

	if _, err := alice.PlaceMark(4); err != nil {
		t.Fatalf("PlaceMark(4) = %v", err)
	}
	if _, err := bob.PlaceMark(4); !errors.Is(err, ErrCellTaken) {
		t.Errorf("occupied cell = %v, want ErrCellTaken", err)
	}

	// A rejection never writes: the board still has exactly one mark.
	st := tictactoeStateFromDoc(store.ReadOnce(tttDocPrefix + "g"))
	marks := 0
	for _, c := range st.Board {
		if c != MarkNone {
			marks++
		}
	}
	if marks != 1 {
		t.Errorf("board has %d marks after rejections, want 1", marks)
	}
}

func TestDrawDetection(t *testing.T) {
	store := newMemStore(0)

	alice := newTicTacToeSession(store, "g", "alice")
	bob := newTicTacToeSession(store, "g", "bob")
	alice.ClaimSeat()
	bob.ClaimSeat()

	// A A B / B B A / A B A: full, no line.
	order := []struct {
		sess *TicTacToeSession
		cell int
	}{
		{alice, 0}, {bob, 2}, {alice, 1}, {bob, 3},
		{alice, 5}, {bob, 4}, {alice, 6}, {bob, 7}, {alice, 8},
	}

	var st TicTacToeState
	var err error
	for _, m := range order {
		if st, err = m.sess.PlaceMark(m.cell); err != nil {
			t.Fatalf("PlaceMark(%d) = %v", m.cell, err)
		}
	}

	if st.Winner != MarkNone {
		t.Errorf("winner = %q, want none", st.Winner)
	}
	if !st.Full() {
		t.Error("board should be full")
	}
}

func TestResetKeepsSeats(t *testing.T) {
	store := newMemStore(0)

	alice := newTicTacToeSession(store, "g", "alice")
	bob := newTicTacToeSession(store, "g", "bob")
	alice.ClaimSeat()
	bob.ClaimSeat()

	alice.PlaceMark(0)
	bob.PlaceMark(1)

	st := alice.Reset()
	for i, c := range st.Board {
		if c != MarkNone {
			t.Errorf("cell %d = %q after reset, want empty", i, c)
		}
	}
	if st.NextTurn != MarkA {
		t.Errorf("next turn = %q after reset, want A", st.NextTurn)
	}
	if st.Seats["alice"] != MarkA || st.Seats["bob"] != MarkB {
		t.Errorf("seats lost on reset: %v", st.Seats)
	}
}
