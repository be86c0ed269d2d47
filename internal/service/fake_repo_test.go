package service

import (
	"context"
	"sync"

	"github.com/roomplay/tictactoe-backend/internal/apperror"
	"github.com/roomplay/tictactoe-backend/internal/entity"
)

// fakeRoomRepo is an in-memory stand-in for the Redis room store. Slots are
// kept side-keyed, exactly like the store's per-room hash, so a conditional
// claim guards the side and nothing else. Claims and state updates are
// serialized under one mutex, mirroring the store's conditional-write
// guarantees.
type fakeRoomRepo struct {
	mu    sync.Mutex
	rooms map[string]*entity.Room
	slots map[string]map[string]string // code -> side -> clientID

	claimWrites int
	stateWrites int

	// pretend this many generated codes collide before one is free
	forceCollisions int

	// invoked once before the next conditional claim; lets a test land a
	// rival write between a caller's read and its claim
	beforeClaim func(code, side, clientID string)

	subscribers map[string][]chan *entity.Room
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{
		rooms:       make(map[string]*entity.Room),
		slots:       make(map[string]map[string]string),
		subscribers: make(map[string][]chan *entity.Room),
	}
}

func (that *fakeRoomRepo) Create(_ context.Context, room *entity.Room) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.rooms[room.Code]; ok {
		return nil
	}

	stored := copyRoom(room)
	stored.Players = nil
	that.rooms[room.Code] = stored

	sides := make(map[string]string, len(room.Players))
	for clientID, side := range room.Players {
		sides[side] = clientID
	}
	that.slots[room.Code] = sides

	return nil
}

func (that *fakeRoomRepo) GetByCode(_ context.Context, code string) (*entity.Room, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, ok := that.snapshotLocked(code)
	if !ok {
		return nil, apperror.ErrRoomNotFound
	}

	return room, nil
}

func (that *fakeRoomRepo) Exists(_ context.Context, code string) (bool, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.forceCollisions > 0 {
		that.forceCollisions--
		return true, nil
	}

	_, ok := that.rooms[code]

	return ok, nil
}

func (that *fakeRoomRepo) UpdateState(ctx context.Context, code string, mutate func(*entity.Room) error) (*entity.Room, error) {
	that.mu.Lock()

	working, ok := that.snapshotLocked(code)
	if !ok {
		that.mu.Unlock()
		return nil, apperror.ErrRoomNotFound
	}

	if err := mutate(working); err != nil {
		that.mu.Unlock()
		return nil, err
	}

	// only the game-state document is written back; slots change solely
	// through claims and releases
	stored := that.rooms[code]
	stored.Board = working.Board
	stored.Turn = working.Turn
	stored.Over = working.Over
	stored.Winner = working.Winner
	that.stateWrites++
	that.mu.Unlock()

	_ = that.Publish(ctx, code)

	return working, nil
}

func (that *fakeRoomRepo) ClaimSlot(ctx context.Context, code, side, clientID string) (bool, error) {
	if hook := that.beforeClaim; hook != nil {
		that.beforeClaim = nil
		hook(code, side, clientID)
	}

	that.mu.Lock()

	sides, ok := that.slots[code]
	if !ok {
		that.mu.Unlock()
		return false, apperror.ErrRoomNotFound
	}

	if _, taken := sides[side]; taken {
		that.mu.Unlock()
		return false, nil
	}

	sides[side] = clientID
	that.claimWrites++
	that.mu.Unlock()

	_ = that.Publish(ctx, code)

	return true, nil
}

func (that *fakeRoomRepo) ReleaseSlot(ctx context.Context, code, clientID string) error {
	that.mu.Lock()

	sides, ok := that.slots[code]
	if !ok {
		that.mu.Unlock()
		return apperror.ErrRoomNotFound
	}

	for side, owner := range sides {
		if owner != clientID {
			continue
		}

		delete(sides, side)
		that.mu.Unlock()

		return that.Publish(ctx, code)
	}

	that.mu.Unlock()

	return apperror.ErrNoSlotAssigned
}

func (that *fakeRoomRepo) Subscribe(_ context.Context, code string) (<-chan *entity.Room, func(), error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	ch := make(chan *entity.Room, 16)
	that.subscribers[code] = append(that.subscribers[code], ch)

	stop := func() {}

	return ch, stop, nil
}

func (that *fakeRoomRepo) Publish(_ context.Context, code string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, ok := that.snapshotLocked(code)
	if !ok {
		return apperror.ErrRoomNotFound
	}

	for _, ch := range that.subscribers[code] {
		select {
		case ch <- room:
		default:
		}
	}

	return nil
}

func (that *fakeRoomRepo) ListCodes(_ context.Context) ([]string, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	codes := make([]string, 0, len(that.rooms))
	for code := range that.rooms {
		codes = append(codes, code)
	}

	return codes, nil
}

func (that *fakeRoomRepo) Delete(_ context.Context, code string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.rooms, code)
	delete(that.slots, code)

	return nil
}

// snapshotLocked assembles the served view of a room, inverting the
// side-keyed slots into the Players map. Callers must hold mu.
func (that *fakeRoomRepo) snapshotLocked(code string) (*entity.Room, bool) {
	room, ok := that.rooms[code]
	if !ok {
		return nil, false
	}

	clone := *room
	clone.Players = make(map[string]string, len(that.slots[code]))
	for side, clientID := range that.slots[code] {
		clone.Players[clientID] = side
	}

	return &clone, true
}

func copyRoom(room *entity.Room) *entity.Room {
	clone := *room
	clone.Players = make(map[string]string, len(room.Players))
	for clientID, side := range room.Players {
		clone.Players[clientID] = side
	}

	return &clone
}
