package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/roomplay/tictactoe-backend/internal/apperror"
	"github.com/roomplay/tictactoe-backend/internal/entity"
	"github.com/roomplay/tictactoe-backend/internal/pkg"
)

// maxCodeAttempts bounds collision regeneration when creating a room. With
// a 36^6 code space a second collision in a row is already vanishingly
// unlikely.
const maxCodeAttempts = 5

var ErrCodeSpaceExhausted = errors.New("could not generate an unused room code")

type RoomService interface {
	Create(ctx context.Context) (*entity.Room, error)
	EnsureExists(ctx context.Context, code string) (*entity.Room, error)
	Exists(ctx context.Context, code string) (bool, error)

	List(ctx context.Context) (map[string]*entity.Room, error)
	Delete(ctx context.Context, code string) error
}

type roomService struct {
	roomRepo RoomRepo
}

type RoomRepo interface {
	Create(ctx context.Context, room *entity.Room) error
	GetByCode(ctx context.Context, code string) (*entity.Room, error)
	Exists(ctx context.Context, code string) (bool, error)
	ListCodes(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, code string) error
}

func NewRoomService(roomRepo RoomRepo) RoomService {
	return &roomService{
		roomRepo: roomRepo,
	}
}

// Create generates a fresh room code, regenerating on collision, and
// initializes the room record.
func (that *roomService) Create(ctx context.Context) (*entity.Room, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := pkg.GenerateRoomCode()

		taken, err := that.roomRepo.Exists(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("failed to check code collision: %w", err)
		}

		if taken {
			continue
		}

		room, err := that.EnsureExists(ctx, code)
		if err != nil {
			return nil, err
		}

		return room, nil
	}

	return nil, ErrCodeSpaceExhausted
}

// EnsureExists creates the room on first access. Redundant initialization
// by racing first-arrivers is harmless: the store only writes when absent
// and every writer starts from the identical fresh state.
func (that *roomService) EnsureExists(ctx context.Context, code string) (*entity.Room, error) {
	if !pkg.IsValidRoomCode(code) {
		return nil, apperror.ErrInvalidRoomCode
	}

	if err := that.roomRepo.Create(ctx, entity.NewRoom(code)); err != nil {
		return nil, fmt.Errorf("failed to ensure room exists: %w", err)
	}

	room, err := that.roomRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to read room back: %w", err)
	}

	return room, nil
}

func (that *roomService) Exists(ctx context.Context, code string) (bool, error) {
	if !pkg.IsValidRoomCode(code) {
		return false, apperror.ErrInvalidRoomCode
	}

	exists, err := that.roomRepo.Exists(ctx, code)
	if err != nil {
		return false, fmt.Errorf("failed to check room existence: %w", err)
	}

	return exists, nil
}

// List returns a summary of every live room, keyed by code. Rooms that
// expire between listing and lookup are skipped.
func (that *roomService) List(ctx context.Context) (map[string]*entity.Room, error) {
	codes, err := that.roomRepo.ListCodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list room codes: %w", err)
	}

	rooms := make(map[string]*entity.Room, len(codes))
	for _, code := range codes {
		room, err := that.roomRepo.GetByCode(ctx, code)
		if errors.Is(err, apperror.ErrRoomNotFound) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("failed to get room %s: %w", code, err)
		}

		rooms[code] = room
	}

	return rooms, nil
}

func (that *roomService) Delete(ctx context.Context, code string) error {
	if !pkg.IsValidRoomCode(code) {
		return apperror.ErrInvalidRoomCode
	}

	if err := that.roomRepo.Delete(ctx, code); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	return nil
}
