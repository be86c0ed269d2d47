package entity

const (
	SideX = "X"
	SideO = "O"

	EmptyCell = ""

	BoardSize = 9
)

// Room phases, derived from player count and outcome.
const (
	PhaseEmpty     = "empty"
	PhaseWaiting   = "waiting"
	PhaseReady     = "ready"
	PhaseConcluded = "concluded"
)

var WinLines = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Room is the authoritative state of one game session. Players maps an
// opaque client identity to its assigned side; at most two entries, sides
// never duplicated.
type Room struct {
	Code    string            `json:"code"`
	Board   [9]string         `json:"board"`
	Turn    string            `json:"turn"`
	Over    bool              `json:"over"`
	Winner  string            `json:"winner,omitempty"`
	Players map[string]string `json:"players,omitempty"`
}

func NewRoom(code string) *Room {
	return &Room{
		Code:    code,
		Turn:    SideX,
		Players: make(map[string]string),
	}
}

// Evaluate inspects a board and reports the winning side, if any, and
// whether the game has concluded. A full board with no complete line is a
// tie: over with no winner.
func Evaluate(board [9]string) (winner string, over bool) {
	for _, line := range WinLines {
		a, b, c := board[line[0]], board[line[1]], board[line[2]]
		if a != EmptyCell && a == b && b == c {
			return a, true
		}
	}

	for _, cell := range board {
		if cell == EmptyCell {
			return EmptyCell, false
		}
	}

	return EmptyCell, true
}

// ApplyMove places mark at cell, re-evaluates the outcome and flips the
// turn. Validation belongs to the coordinator; this only performs the
// transition.
func (that *Room) ApplyMove(cell int, mark string) {
	that.Board[cell] = mark
	that.Winner, that.Over = Evaluate(that.Board)

	if !that.Over {
		that.Turn = OpponentOf(mark)
	}
}

// ResetBoard clears the outcome and board while preserving Players. A
// restart keeps both participants in their slots.
func (that *Room) ResetBoard() {
	that.Board = [9]string{}
	that.Turn = SideX
	that.Over = false
	that.Winner = EmptyCell
}

// SideOf returns the side assigned to clientID, or "" when unassigned.
func (that *Room) SideOf(clientID string) string {
	return that.Players[clientID]
}

// OpenSide returns the first unclaimed side, X before O, or "" when the
// room is full.
func (that *Room) OpenSide() string {
	taken := make(map[string]bool, len(that.Players))
	for _, side := range that.Players {
		taken[side] = true
	}

	switch {
	case !taken[SideX]:
		return SideX
	case !taken[SideO]:
		return SideO
	default:
		return EmptyCell
	}
}

func (that *Room) IsFull() bool {
	return len(that.Players) >= 2
}

// IsReady reports whether both slots are occupied and moves may be
// accepted.
func (that *Room) IsReady() bool {
	return len(that.Players) == 2
}

// Phase derives the room lifecycle phase; it is never stored.
func (that *Room) Phase() string {
	switch {
	case that.Over:
		return PhaseConcluded
	case len(that.Players) == 0:
		return PhaseEmpty
	case len(that.Players) == 1:
		return PhaseWaiting
	default:
		return PhaseReady
	}
}

func OpponentOf(mark string) string {
	if mark == SideX {
		return SideO
	}
	return SideX
}
