package apperror

import "errors"

var (
	ErrInvalidRoomCode = errors.New("invalid room code format")
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomFull        = errors.New("room already has two players")

	ErrNoSlotAvailable = errors.New("no slot available")
	ErrNoSlotAssigned  = errors.New("player has no assigned side")

	ErrInvalidCell  = errors.New("invalid cell index")
	ErrCellOccupied = errors.New("cell is already occupied")
	ErrNotYourTurn  = errors.New("it's not your turn")
	ErrGameOver     = errors.New("game is already over")
	ErrGameNotReady = errors.New("game is waiting for a second player")

	// ErrRoomConflict means a concurrent writer committed first; the caller
	// must resynchronize from the latest snapshot instead of retrying.
	ErrRoomConflict = errors.New("room changed concurrently")
)
