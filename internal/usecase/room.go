package usecase

import (
	"context"
	"fmt"

	"github.com/roomplay/tictactoe-backend/internal/apperror"
	"github.com/roomplay/tictactoe-backend/internal/entity"
	"github.com/roomplay/tictactoe-backend/internal/pkg"
	"github.com/roomplay/tictactoe-backend/internal/service"
)

// RoomUseCase is the surface both transports consume: lifecycle plus the
// per-client session operations.
type RoomUseCase interface {
	EnsureClientID(clientID string) string

	CreateRoom(ctx context.Context) (*entity.Room, error)
	JoinRoom(ctx context.Context, code, clientID string) (*entity.Room, string, error)
	GetRoom(ctx context.Context, code string) (*entity.Room, error)

	SubmitMove(ctx context.Context, code, clientID string, cell int) (*entity.Room, error)
	SubmitReset(ctx context.Context, code, clientID string) (*entity.Room, error)
	LeaveRoom(ctx context.Context, code, clientID string) error
	WatchRoom(ctx context.Context, code string) (<-chan *entity.Room, func(), error)

	ListRooms(ctx context.Context) (map[string]*entity.Room, error)
	DeleteRoom(ctx context.Context, code string) error
}

type roomUseCase struct {
	roomService    service.RoomService
	sessionService service.SessionService
}

func NewRoomUseCase(roomService service.RoomService, sessionService service.SessionService) RoomUseCase {
	return &roomUseCase{
		roomService:    roomService,
		sessionService: sessionService,
	}
}

// EnsureClientID hands a first-time client a fresh identity token; a
// returning client keeps the one it presents. The token is only a key into
// player maps, not a credential.
func (that *roomUseCase) EnsureClientID(clientID string) string {
	if clientID == "" {
		return pkg.GenerateClientID()
	}

	return clientID
}

func (that *roomUseCase) CreateRoom(ctx context.Context) (*entity.Room, error) {
	room, err := that.roomService.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}

	return room, nil
}

// JoinRoom validates the code format before touching storage, then seats
// the client. A full room with the client not already seated is rejected.
func (that *roomUseCase) JoinRoom(ctx context.Context, code, clientID string) (*entity.Room, string, error) {
	code = pkg.NormalizeRoomCode(code)
	if !pkg.IsValidRoomCode(code) {
		return nil, "", apperror.ErrInvalidRoomCode
	}

	exists, err := that.roomService.Exists(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("failed to check room: %w", err)
	}

	if !exists {
		return nil, "", apperror.ErrRoomNotFound
	}

	room, err := that.GetRoom(ctx, code)
	if err != nil {
		return nil, "", err
	}

	if room.IsFull() && room.SideOf(clientID) == entity.EmptyCell {
		return nil, "", apperror.ErrRoomFull
	}

	side, err := that.sessionService.AssignSlot(ctx, code, clientID)
	if err != nil {
		return nil, "", err
	}

	room, err = that.GetRoom(ctx, code)
	if err != nil {
		return nil, "", err
	}

	return room, side, nil
}

func (that *roomUseCase) GetRoom(ctx context.Context, code string) (*entity.Room, error) {
	room, err := that.roomService.EnsureExists(ctx, pkg.NormalizeRoomCode(code))
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	return room, nil
}

func (that *roomUseCase) SubmitMove(ctx context.Context, code, clientID string, cell int) (*entity.Room, error) {
	room, err := that.sessionService.SubmitMove(ctx, pkg.NormalizeRoomCode(code), clientID, cell)
	if err != nil {
		return nil, err
	}

	return room, nil
}

func (that *roomUseCase) SubmitReset(ctx context.Context, code, clientID string) (*entity.Room, error) {
	room, err := that.sessionService.SubmitReset(ctx, pkg.NormalizeRoomCode(code), clientID)
	if err != nil {
		return nil, err
	}

	return room, nil
}

func (that *roomUseCase) LeaveRoom(ctx context.Context, code, clientID string) error {
	return that.sessionService.Leave(ctx, pkg.NormalizeRoomCode(code), clientID)
}

func (that *roomUseCase) WatchRoom(ctx context.Context, code string) (<-chan *entity.Room, func(), error) {
	return that.sessionService.Watch(ctx, pkg.NormalizeRoomCode(code))
}

func (that *roomUseCase) ListRooms(ctx context.Context) (map[string]*entity.Room, error) {
	rooms, err := that.roomService.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	return rooms, nil
}

func (that *roomUseCase) DeleteRoom(ctx context.Context, code string) error {
	code = pkg.NormalizeRoomCode(code)
	if !pkg.IsValidRoomCode(code) {
		return apperror.ErrInvalidRoomCode
	}

	if err := that.roomService.Delete(ctx, code); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	return nil
}
