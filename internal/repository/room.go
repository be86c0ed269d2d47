package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roomplay/tictactoe-backend/internal/apperror"
	"github.com/roomplay/tictactoe-backend/internal/entity"
)

const (
	statePrefix   = "room:"
	slotsSuffix   = ":slots"
	registryKey   = "rooms"
	channelPrefix = "room:updates:"
)

type RoomRepository interface {
	Create(ctx context.Context, room *entity.Room) error
	GetByCode(ctx context.Context, code string) (*entity.Room, error)
	Exists(ctx context.Context, code string) (bool, error)

	UpdateState(ctx context.Context, code string, mutate func(*entity.Room) error) (*entity.Room, error)
	ClaimSlot(ctx context.Context, code, side, clientID string) (bool, error)
	ReleaseSlot(ctx context.Context, code, clientID string) error

	Subscribe(ctx context.Context, code string) (<-chan *entity.Room, func(), error)
	Publish(ctx context.Context, code string) error

	ListCodes(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, code string) error
}

// stateDoc is the persisted game-state document. Player slots live in a
// separate hash so that slot claims stay field-scoped and never overwrite
// the contended state document.
type stateDoc struct {
	Board  [9]string `json:"board"`
	Turn   string    `json:"turn"`
	Over   bool      `json:"over"`
	Winner string    `json:"winner,omitempty"`
}

type dbRoom struct {
	logger *slog.Logger
	client *redis.Client
	ttl    time.Duration
}

// NewRoomRepository builds a Redis-backed room store. A non-zero ttl is
// refreshed on every committed write, so idle rooms expire on their own.
func NewRoomRepository(logger *slog.Logger, client *redis.Client, ttl time.Duration) RoomRepository {
	return &dbRoom{
		logger: logger,
		client: client,
		ttl:    ttl,
	}
}

// Create writes a fresh room only when no record exists yet. Redundant
// calls by concurrent first-arrivers are harmless: the initial state is
// identical regardless of which writer lands first.
func (that *dbRoom) Create(ctx context.Context, room *entity.Room) error {
	doc, err := json.Marshal(stateFromRoom(room))
	if err != nil {
		return fmt.Errorf("could not marshal room state: %w", err)
	}

	if err = that.client.SetNX(ctx, stateKey(room.Code), doc, that.ttl).Err(); err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}

	if err = that.client.SAdd(ctx, registryKey, room.Code).Err(); err != nil {
		return fmt.Errorf("failed to register room: %w", err)
	}

	return nil
}

func (that *dbRoom) GetByCode(ctx context.Context, code string) (*entity.Room, error) {
	response, err := that.client.Get(ctx, stateKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrRoomNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get room state: %w", err)
	}

	slots, err := that.client.HGetAll(ctx, slotsKey(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get room slots: %w", err)
	}

	return assembleRoom(code, []byte(response), slots)
}

func (that *dbRoom) Exists(ctx context.Context, code string) (bool, error) {
	count, err := that.client.Exists(ctx, stateKey(code)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check room existence: %w", err)
	}

	return count > 0, nil
}

// UpdateState runs mutate against the freshest room state inside an
// optimistic WATCH transaction. Both the state document and the slots hash
// are watched, since mutate validates against the seated players: a claim
// or departure committing mid-transaction must abort the write. An aborted
// transaction surfaces ErrRoomConflict with nothing written; the caller is
// expected to resynchronize, never to retry blindly.
func (that *dbRoom) UpdateState(ctx context.Context, code string, mutate func(*entity.Room) error) (*entity.Room, error) {
	var updated *entity.Room

	err := that.client.Watch(ctx, func(tx *redis.Tx) error {
		response, err := tx.Get(ctx, stateKey(code)).Result()
		if errors.Is(err, redis.Nil) {
			return apperror.ErrRoomNotFound
		}

		if err != nil {
			return fmt.Errorf("failed to get room state: %w", err)
		}

		slots, err := tx.HGetAll(ctx, slotsKey(code)).Result()
		if err != nil {
			return fmt.Errorf("failed to get room slots: %w", err)
		}

		room, err := assembleRoom(code, []byte(response), slots)
		if err != nil {
			return err
		}

		if err = mutate(room); err != nil {
			return err
		}

		doc, err := json.Marshal(stateFromRoom(room))
		if err != nil {
			return fmt.Errorf("could not marshal room state: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, stateKey(code), doc, that.ttl)
			if that.ttl > 0 {
				pipe.Expire(ctx, slotsKey(code), that.ttl)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to write room state: %w", err)
		}

		updated = room

		return nil
	}, stateKey(code), slotsKey(code))
	if errors.Is(err, redis.TxFailedErr) {
		return nil, apperror.ErrRoomConflict
	}

	if err != nil {
		return nil, err
	}

	that.fanOut(ctx, code)

	return updated, nil
}

// ClaimSlot atomically assigns a side to clientID. HSETNX is field-scoped
// and conditional, so two clients claiming concurrently can never clobber
// each other or end up sharing a side.
func (that *dbRoom) ClaimSlot(ctx context.Context, code, side, clientID string) (bool, error) {
	claimed, err := that.client.HSetNX(ctx, slotsKey(code), side, clientID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim slot: %w", err)
	}

	if !claimed {
		return false, nil
	}

	if that.ttl > 0 {
		if err = that.client.Expire(ctx, slotsKey(code), that.ttl).Err(); err != nil {
			that.logger.Warn("failed to refresh slot expiry", "code", code, "error", err)
		}
	}

	that.fanOut(ctx, code)

	return true, nil
}

// ReleaseSlot removes only the caller's own slot. The WATCH guards the
// lookup of which side belongs to clientID; the deletion itself is
// field-scoped.
func (that *dbRoom) ReleaseSlot(ctx context.Context, code, clientID string) error {
	err := that.client.Watch(ctx, func(tx *redis.Tx) error {
		slots, err := tx.HGetAll(ctx, slotsKey(code)).Result()
		if err != nil {
			return fmt.Errorf("failed to get room slots: %w", err)
		}

		for side, owner := range slots {
			if owner != clientID {
				continue
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HDel(ctx, slotsKey(code), side)
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to release slot: %w", err)
			}

			return nil
		}

		return apperror.ErrNoSlotAssigned
	}, slotsKey(code))
	if errors.Is(err, redis.TxFailedErr) {
		return apperror.ErrRoomConflict
	}

	if err != nil {
		return err
	}

	that.fanOut(ctx, code)

	return nil
}

// Subscribe streams committed room snapshots in the room's publish order.
// Every writer's commit is delivered to every subscriber, the writer
// included. The returned stop function releases the subscription.
func (that *dbRoom) Subscribe(ctx context.Context, code string) (<-chan *entity.Room, func(), error) {
	pubsub := that.client.Subscribe(ctx, channelKey(code))

	// forces the subscription to be established before first use
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to room: %w", err)
	}

	out := make(chan *entity.Room)

	go func() {
		defer close(out)

		for msg := range pubsub.Channel() {
			var room entity.Room
			if err := json.Unmarshal([]byte(msg.Payload), &room); err != nil {
				continue
			}

			select {
			case out <- &room:
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() {
		_ = pubsub.Close()
	}

	return out, stop, nil
}

// Publish fans the freshest committed snapshot out to all subscribers of
// the room channel.
func (that *dbRoom) Publish(ctx context.Context, code string) error {
	room, err := that.GetByCode(ctx, code)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("could not marshal room snapshot: %w", err)
	}

	if err = that.client.Publish(ctx, channelKey(code), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish room snapshot: %w", err)
	}

	return nil
}

// fanOut publishes the committed snapshot best-effort. The write is already
// durable at this point, so a failed publish is logged, never surfaced as a
// failure of the write itself; subscribers catch up on the next commit.
func (that *dbRoom) fanOut(ctx context.Context, code string) {
	if err := that.Publish(ctx, code); err != nil {
		that.logger.Warn("room snapshot publish failed", "method", "fanOut", "code", code, "error", err)
	}
}

// ListCodes returns every registered room code, pruning registry entries
// whose record has idle-expired.
func (that *dbRoom) ListCodes(ctx context.Context) ([]string, error) {
	codes, err := that.client.SMembers(ctx, registryKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}

	alive := make([]string, 0, len(codes))
	for _, code := range codes {
		count, err := that.client.Exists(ctx, stateKey(code)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check room existence: %w", err)
		}

		if count == 0 {
			_ = that.client.SRem(ctx, registryKey, code).Err()
			continue
		}

		alive = append(alive, code)
	}

	return alive, nil
}

func (that *dbRoom) Delete(ctx context.Context, code string) error {
	if err := that.client.Del(ctx, stateKey(code), slotsKey(code)).Err(); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	if err := that.client.SRem(ctx, registryKey, code).Err(); err != nil {
		return fmt.Errorf("failed to unregister room: %w", err)
	}

	return nil
}

func stateKey(code string) string {
	return statePrefix + code
}

func slotsKey(code string) string {
	return statePrefix + code + slotsSuffix
}

func channelKey(code string) string {
	return channelPrefix + code
}

func stateFromRoom(room *entity.Room) stateDoc {
	return stateDoc{
		Board:  room.Board,
		Turn:   room.Turn,
		Over:   room.Over,
		Winner: room.Winner,
	}
}

func assembleRoom(code string, doc []byte, slots map[string]string) (*entity.Room, error) {
	var state stateDoc
	if err := json.Unmarshal(doc, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room state: %w", err)
	}

	room := &entity.Room{
		Code:    code,
		Board:   state.Board,
		Turn:    state.Turn,
		Over:    state.Over,
		Winner:  state.Winner,
		Players: make(map[string]string, len(slots)),
	}

	for side, clientID := range slots {
		room.Players[clientID] = side
	}

	return room, nil
}
