// Pure game rules. Everything in this file is deterministic, does no I/O,
// and operates only on its arguments.

package main

import (
	"math"
	"strings"
)

// Mark identifies which partner owns a board cell or a win.
type Mark string

const (
	MarkNone Mark = ""
	MarkA    Mark = "A"
	MarkB    Mark = "B"
)

const earthRadiusMiles = 3959.0

// greatCircleDistance returns the haversine distance between two coordinates,
// in miles.
func greatCircleDistance(lat1, lon1, lat2, lon2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMiles * c
}

var winLines = [8][3]int{
	// rows
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	// cols
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	// diags
	{0, 4, 8}, {2, 4, 6},
}

// winningLine returns the mark holding a complete line, or MarkNone. A full
// board with no line is still MarkNone; the draw is the caller's to notice.
func winningLine(board [9]Mark) Mark {
	for _, ln := range winLines {
		if board[ln[0]] != MarkNone && board[ln[0]] == board[ln[1]] && board[ln[1]] == board[ln[2]] {
			return board[ln[0]]
		}
	}
	return MarkNone
}

// isLetterSubset reports whether word can be spelled from the letters of base,
// counting multiplicity and ignoring case. It says nothing about whether word
// is a real word.
func isLetterSubset(word, base string) bool {
	counts := make(map[rune]int)
	for _, r := range strings.ToLower(base) {
		counts[r]++
	}
	for _, r := range strings.ToLower(word) {
		if counts[r] == 0 {
			return false
		}
		counts[r]--
	}
	return true
}
