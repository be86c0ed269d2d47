package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roomplay/tictactoe-backend/internal/apperror"
	"github.com/roomplay/tictactoe-backend/internal/entity"
)

// SessionService arbitrates everything a seated client may do to a room:
// slot assignment, moves, resets and leaving. All validation happens
// against the freshest store read, never against a locally cached snapshot.
type SessionService interface {
	AssignSlot(ctx context.Context, code, clientID string) (string, error)
	SubmitMove(ctx context.Context, code, clientID string, cell int) (*entity.Room, error)
	SubmitReset(ctx context.Context, code, clientID string) (*entity.Room, error)
	Leave(ctx context.Context, code, clientID string) error

	Watch(ctx context.Context, code string) (<-chan *entity.Room, func(), error)
}

type SessionRepo interface {
	GetByCode(ctx context.Context, code string) (*entity.Room, error)
	UpdateState(ctx context.Context, code string, mutate func(*entity.Room) error) (*entity.Room, error)
	ClaimSlot(ctx context.Context, code, side, clientID string) (bool, error)
	ReleaseSlot(ctx context.Context, code, clientID string) error
	Subscribe(ctx context.Context, code string) (<-chan *entity.Room, func(), error)
}

type sessionService struct {
	logger   *slog.Logger
	roomRepo SessionRepo
}

func NewSessionService(logger *slog.Logger, roomRepo SessionRepo) SessionService {
	return &sessionService{
		logger:   logger,
		roomRepo: roomRepo,
	}
}

// AssignSlot gives clientID a side in the room. A reconnecting client keeps
// the side it already holds, without a second write. Fresh claims go
// through the store's conditional per-side write, so two clients arriving
// concurrently always end up split across X and O.
func (that *sessionService) AssignSlot(ctx context.Context, code, clientID string) (string, error) {
	log := that.logger.With("method", "AssignSlot", "code", code)

	room, err := that.roomRepo.GetByCode(ctx, code)
	if err != nil {
		return "", fmt.Errorf("failed to get room: %w", err)
	}

	// Losing the claim for one side means someone landed there first. That
	// someone may be a duplicate request carrying this very clientID, so the
	// refreshed read must check our own seat again before eyeing the other
	// side; claiming both would wedge the room.
	for attempt := 0; attempt < 2; attempt++ {
		if side := room.SideOf(clientID); side != entity.EmptyCell {
			return side, nil
		}

		side := room.OpenSide()
		if side == entity.EmptyCell {
			return "", apperror.ErrNoSlotAvailable
		}

		claimed, err := that.roomRepo.ClaimSlot(ctx, code, side, clientID)
		if err != nil {
			return "", fmt.Errorf("failed to claim slot: %w", err)
		}

		if claimed {
			log.Info("slot assigned", "side", side)
			return side, nil
		}

		room, err = that.roomRepo.GetByCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to refresh room: %w", err)
		}
	}

	if side := room.SideOf(clientID); side != entity.EmptyCell {
		return side, nil
	}

	return "", apperror.ErrNoSlotAvailable
}

// SubmitMove validates and applies one move as a single store transaction.
// Any validation failure leaves the room untouched; the caller resyncs from
// the subscribed snapshot stream.
func (that *sessionService) SubmitMove(ctx context.Context, code, clientID string, cell int) (*entity.Room, error) {
	log := that.logger.With("method", "SubmitMove", "code", code)

	if cell < 0 || cell >= entity.BoardSize {
		return nil, fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	room, err := that.roomRepo.UpdateState(ctx, code, func(room *entity.Room) error {
		side := room.SideOf(clientID)
		if side == entity.EmptyCell {
			return apperror.ErrNoSlotAssigned
		}

		if room.Over {
			return apperror.ErrGameOver
		}

		if !room.IsReady() {
			return apperror.ErrGameNotReady
		}

		if room.Turn != side {
			return apperror.ErrNotYourTurn
		}

		if room.Board[cell] != entity.EmptyCell {
			return apperror.ErrCellOccupied
		}

		room.ApplyMove(cell, side)

		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("move accepted", "cell", cell, "over", room.Over)

	return room, nil
}

// SubmitReset clears the board and outcome while preserving both player
// slots; a restart keeps the same participants. Only a seated player may
// reset.
func (that *sessionService) SubmitReset(ctx context.Context, code, clientID string) (*entity.Room, error) {
	log := that.logger.With("method", "SubmitReset", "code", code)

	room, err := that.roomRepo.UpdateState(ctx, code, func(room *entity.Room) error {
		if room.SideOf(clientID) == entity.EmptyCell {
			return apperror.ErrNoSlotAssigned
		}

		room.ResetBoard()

		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("room reset")

	return room, nil
}

// Leave releases only the caller's own slot. It is deliberately distinct
// from reset: leaving re-opens a slot, resetting never does.
func (that *sessionService) Leave(ctx context.Context, code, clientID string) error {
	if err := that.roomRepo.ReleaseSlot(ctx, code, clientID); err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	that.logger.Info("player left room", "method", "Leave", "code", code)

	return nil
}

// Watch streams committed snapshots of the room in its single order of
// record. Subscribers derive their view from these snapshots only, never
// from their own optimistic writes.
func (that *sessionService) Watch(ctx context.Context, code string) (<-chan *entity.Room, func(), error) {
	updates, stop, err := that.roomRepo.Subscribe(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to watch room: %w", err)
	}

	return updates, stop, nil
}
