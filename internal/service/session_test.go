package service

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roomplay/tictactoe-backend/internal/apperror"
	"github.com/roomplay/tictactoe-backend/internal/entity"
)

const testCode = "ABC123"

func newTestSession(t *testing.T) (SessionService, *fakeRoomRepo) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	repo := newFakeRoomRepo()

	return NewSessionService(logger, repo), repo
}

func seedRoom(t *testing.T, repo *fakeRoomRepo, players map[string]string) {
	t.Helper()

	room := entity.NewRoom(testCode)
	for clientID, side := range players {
		room.Players[clientID] = side
	}

	require.NoError(t, repo.Create(context.Background(), room))
}

func TestSessionService_AssignSlot(t *testing.T) {
	ctx := context.Background()

	t.Run("First arrival gets X", func(t *testing.T) {
		// Given: an empty room
		session, repo := newTestSession(t)
		seedRoom(t, repo, nil)

		// When: a client asks for a slot
		side, err := session.AssignSlot(ctx, testCode, "client-a")

		// Then: it is seated as X
		require.NoError(t, err)
		assert.Equal(t, entity.SideX, side)
	})

	t.Run("Second arrival gets O", func(t *testing.T) {
		// Given: a room where X is taken
		session, repo := newTestSession(t)
		seedRoom(t, repo, map[string]string{"client-a": entity.SideX})

		// When: a second client asks for a slot
		side, err := session.AssignSlot(ctx, testCode, "client-b")

		// Then: it is seated as O
		require.NoError(t, err)
		assert.Equal(t, entity.SideO, side)
	})

	t.Run("Reassignment is idempotent and writes nothing", func(t *testing.T) {
		// Given: a client already seated as O
		session, repo := newTestSession(t)
		seedRoom(t, repo, map[string]string{"client-a": entity.SideX, "client-b": entity.SideO})
		writesBefore := repo.claimWrites

		// When: the same client asks twice
		first, err := session.AssignSlot(ctx, testCode, "client-b")
		require.NoError(t, err)
		second, err := session.AssignSlot(ctx, testCode, "client-b")
		require.NoError(t, err)

		// Then: both calls return O and no claim was written
		assert.Equal(t, entity.SideO, first)
		assert.Equal(t, entity.SideO, second)
		assert.Equal(t, writesBefore, repo.claimWrites)
	})

	t.Run("Third arrival is left without a slot", func(t *testing.T) {
		// Given: a full room
		session, repo := newTestSession(t)
		seedRoom(t, repo, map[string]string{"client-a": entity.SideX, "client-b": entity.SideO})

		// When: a third client asks for a slot
		_, err := session.AssignSlot(ctx, testCode, "client-c")

		// Then: no slot is available
		assert.ErrorIs(t, err, apperror.ErrNoSlotAvailable)
	})

	t.Run("Concurrent claimants always split X and O", func(t *testing.T) {
		// Given: an empty room and two clients racing for a seat
		session, repo := newTestSession(t)
		seedRoom(t, repo, nil)

		var wg sync.WaitGroup
		sides := make([]string, 2)
		errs := make([]error, 2)

		for i, clientID := range []string{"client-a", "client-b"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sides[i], errs[i] = session.AssignSlot(ctx, testCode, clientID)
			}()
		}
		wg.Wait()

		// Then: both are seated and the sides differ
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.NotEqual(t, sides[0], sides[1])
		assert.ElementsMatch(t, []string{entity.SideX, entity.SideO}, sides)
	})

	t.Run("Duplicate request losing the claim keeps the side it already won", func(t *testing.T) {
		// Given: an empty room and a client whose retried request sneaks in
		// between this call's read and its claim
		session, repo := newTestSession(t)
		seedRoom(t, repo, nil)

		repo.beforeClaim = func(code, side, clientID string) {
			claimed, err := repo.ClaimSlot(ctx, code, side, clientID)
			require.NoError(t, err)
			require.True(t, claimed)
		}

		// When: the slower duplicate finishes its assignment
		side, err := session.AssignSlot(ctx, testCode, "client-a")

		// Then: the client is settled on the side the first request won and
		// holds nothing else
		require.NoError(t, err)
		assert.Equal(t, entity.SideX, side)
		assert.Equal(t, map[string]string{entity.SideX: "client-a"}, repo.slots[testCode])

		// and the other seat is still open for a second player
		other, err := session.AssignSlot(ctx, testCode, "client-b")
		require.NoError(t, err)
		assert.Equal(t, entity.SideO, other)
	})

	t.Run("Concurrent duplicate requests for one client agree on a side", func(t *testing.T) {
		// Given: an empty room and the same client asking twice at once
		session, repo := newTestSession(t)
		seedRoom(t, repo, nil)

		var wg sync.WaitGroup
		sides := make([]string, 2)
		errs := make([]error, 2)

		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				sides[i], errs[i] = session.AssignSlot(ctx, testCode, "client-a")
			}()
		}
		wg.Wait()

		// Then: both requests report the same single seat
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])
		assert.Equal(t, sides[0], sides[1])
		assert.Len(t, repo.slots[testCode], 1)

		// and a second player can still be seated
		other, err := session.AssignSlot(ctx, testCode, "client-b")
		require.NoError(t, err)
		assert.NotEqual(t, sides[0], other)
	})

	t.Run("Unknown room surfaces not found", func(t *testing.T) {
		session, _ := newTestSession(t)

		_, err := session.AssignSlot(ctx, "ZZZZZZ", "client-a")

		assert.ErrorIs(t, err, apperror.ErrRoomNotFound)
	})
}

func TestSessionService_SubmitMove(t *testing.T) {
	ctx := context.Background()
	bothSeated := map[string]string{"client-x": entity.SideX, "client-o": entity.SideO}

	t.Run("Accepted move flips the turn", func(t *testing.T) {
		// Given: a ready room with X to move
		session, repo := newTestSession(t)
		seedRoom(t, repo, bothSeated)

		// When: X takes the center
		room, err := session.SubmitMove(ctx, testCode, "client-x", 4)

		// Then: the cell is marked and it is O's turn
		require.NoError(t, err)
		assert.Equal(t, entity.SideX, room.Board[4])
		assert.Equal(t, entity.SideO, room.Turn)
		assert.False(t, room.Over)
	})

	t.Run("Move out of turn changes nothing", func(t *testing.T) {
		// Given: a ready room with X to move
		session, repo := newTestSession(t)
		seedRoom(t, repo, bothSeated)

		// When: O tries to move first
		_, err := session.SubmitMove(ctx, testCode, "client-o", 0)

		// Then: the move is rejected and the room is untouched
		assert.ErrorIs(t, err, apperror.ErrNotYourTurn)

		room, getErr := repo.GetByCode(ctx, testCode)
		require.NoError(t, getErr)
		assert.Equal(t, [9]string{}, room.Board)
		assert.Equal(t, entity.SideX, room.Turn)
	})

	t.Run("Occupied cell is rejected", func(t *testing.T) {
		// Given: X already holds the center
		session, repo := newTestSession(t)
		seedRoom(t, repo, bothSeated)

		_, err := session.SubmitMove(ctx, testCode, "client-x", 4)
		require.NoError(t, err)

		// When: O targets the same cell
		_, err = session.SubmitMove(ctx, testCode, "client-o", 4)

		// Then: the move is rejected
		assert.ErrorIs(t, err, apperror.ErrCellOccupied)
	})

	t.Run("No move before the second player arrives", func(t *testing.T) {
		// Given: a room with only X seated
		session, repo := newTestSession(t)
		seedRoom(t, repo, map[string]string{"client-x": entity.SideX})

		// When: X tries to move alone
		_, err := session.SubmitMove(ctx, testCode, "client-x", 0)

		// Then: the game is not ready
		assert.ErrorIs(t, err, apperror.ErrGameNotReady)
	})

	t.Run("Spectator cannot move", func(t *testing.T) {
		// Given: a ready room and an unseated client
		session, repo := newTestSession(t)
		seedRoom(t, repo, bothSeated)

		// When: the spectator tries to move
		_, err := session.SubmitMove(ctx, testCode, "client-watcher", 0)

		// Then: it has no assigned side
		assert.ErrorIs(t, err, apperror.ErrNoSlotAssigned)
	})

	t.Run("Cell out of range is rejected before any store access", func(t *testing.T) {
		session, repo := newTestSession(t)
		seedRoom(t, repo, bothSeated)

		_, err := session.SubmitMove(ctx, testCode, "client-x", 9)
		assert.ErrorIs(t, err, apperror.ErrInvalidCell)

		_, err = session.SubmitMove(ctx, testCode, "client-x", -1)
		assert.ErrorIs(t, err, apperror.ErrInvalidCell)
	})

	t.Run("Scripted sequence ends with X winning the top row", func(t *testing.T) {
		// Given: a ready room
		session, repo := newTestSession(t)
		seedRoom(t, repo, bothSeated)

		// When: X 0, O 4, X 1, O 8, X 2
		moves := []struct {
			clientID string
			cell     int
		}{
			{"client-x", 0},
			{"client-o", 4},
			{"client-x", 1},
			{"client-o", 8},
			{"client-x", 2},
		}

		var room *entity.Room
		var err error
		for _, move := range moves {
			room, err = session.SubmitMove(ctx, testCode, move.clientID, move.cell)
			require.NoError(t, err)
		}

		// Then: X wins with line 0,1,2
		assert.True(t, room.Over)
		assert.Equal(t, entity.SideX, room.Winner)
		assert.Equal(t, entity.SideX, room.Board[0])
		assert.Equal(t, entity.SideX, room.Board[1])
		assert.Equal(t, entity.SideX, room.Board[2])
	})

	t.Run("No more moves once the game is over", func(t *testing.T) {
		// Given: a concluded room
		session, repo := newTestSession(t)
		seedRoom(t, repo, bothSeated)

		_, err := repo.UpdateState(ctx, testCode, func(room *entity.Room) error {
			room.Board = [9]string{entity.SideX, entity.SideX, entity.SideX}
			room.Over = true
			room.Winner = entity.SideX
			return nil
		})
		require.NoError(t, err)

		// When: O tries to keep playing
		_, err = session.SubmitMove(ctx, testCode, "client-o", 5)

		// Then: the move is rejected
		assert.ErrorIs(t, err, apperror.ErrGameOver)
	})

	t.Run("Filling the board with no line ends in a tie", func(t *testing.T) {
		// Given: a room one move from a full, lineless board
		session, repo := newTestSession(t)
		seedRoom(t, repo, bothSeated)

		_, err := repo.UpdateState(ctx, testCode, func(room *entity.Room) error {
			room.Board = [9]string{
				entity.SideX, entity.SideO, entity.SideX,
				entity.SideO, entity.SideX, entity.SideO,
				entity.SideO, entity.SideX, entity.EmptyCell,
			}
			room.Turn = entity.SideO
			return nil
		})
		require.NoError(t, err)

		// When: O fills the last cell
		room, err := session.SubmitMove(ctx, testCode, "client-o", 8)

		// Then: over, no winner
		require.NoError(t, err)
		assert.True(t, room.Over)
		assert.Empty(t, room.Winner)
	})
}

func TestSessionService_SubmitReset(t *testing.T) {
	ctx := context.Background()

	t.Run("Reset clears the outcome and keeps both players", func(t *testing.T) {
		// Given: a concluded room with two seated players
		session, repo := newTestSession(t)
		seedRoom(t, repo, map[string]string{"client-x": entity.SideX, "client-o": entity.SideO})

		_, err := repo.UpdateState(ctx, testCode, func(room *entity.Room) error {
			room.Board = [9]string{entity.SideX, entity.SideX, entity.SideX}
			room.Over = true
			room.Winner = entity.SideX
			return nil
		})
		require.NoError(t, err)

		// When: a seated player resets
		room, err := session.SubmitReset(ctx, testCode, "client-o")

		// Then: board and outcome are fresh, players preserved
		require.NoError(t, err)
		assert.Equal(t, [9]string{}, room.Board)
		assert.Equal(t, entity.SideX, room.Turn)
		assert.False(t, room.Over)
		assert.Empty(t, room.Winner)
		assert.Equal(t, entity.SideX, room.Players["client-x"])
		assert.Equal(t, entity.SideO, room.Players["client-o"])
	})

	t.Run("Unseated client may not reset", func(t *testing.T) {
		// Given: a room the client is not part of
		session, repo := newTestSession(t)
		seedRoom(t, repo, map[string]string{"client-x": entity.SideX})

		// When: an outsider tries to reset
		_, err := session.SubmitReset(ctx, testCode, "client-stranger")

		// Then: the reset is rejected
		assert.ErrorIs(t, err, apperror.ErrNoSlotAssigned)
	})
}

func TestSessionService_Leave(t *testing.T) {
	ctx := context.Background()

	t.Run("Leaving releases only the caller's slot", func(t *testing.T) {
		// Given: a full room
		session, repo := newTestSession(t)
		seedRoom(t, repo, map[string]string{"client-x": entity.SideX, "client-o": entity.SideO})

		// When: X leaves
		err := session.Leave(ctx, testCode, "client-x")

		// Then: only O remains seated
		require.NoError(t, err)

		room, err := repo.GetByCode(ctx, testCode)
		require.NoError(t, err)
		assert.NotContains(t, room.Players, "client-x")
		assert.Equal(t, entity.SideO, room.Players["client-o"])
	})

	t.Run("Leaving without a slot fails", func(t *testing.T) {
		session, repo := newTestSession(t)
		seedRoom(t, repo, nil)

		err := session.Leave(ctx, testCode, "client-x")

		assert.ErrorIs(t, err, apperror.ErrNoSlotAssigned)
	})
}

func TestSessionService_Watch(t *testing.T) {
	ctx := context.Background()

	t.Run("Subscribers observe committed writes, the writer included", func(t *testing.T) {
		// Given: a ready room with one subscriber
		session, repo := newTestSession(t)
		seedRoom(t, repo, map[string]string{"client-x": entity.SideX, "client-o": entity.SideO})

		updates, stop, err := session.Watch(ctx, testCode)
		require.NoError(t, err)
		defer stop()

		// When: a move is committed
		_, err = session.SubmitMove(ctx, testCode, "client-x", 0)
		require.NoError(t, err)

		// Then: the snapshot arrives on the stream
		snapshot := <-updates
		assert.Equal(t, entity.SideX, snapshot.Board[0])
		assert.Equal(t, entity.SideO, snapshot.Turn)
	})
}
