package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roomplay/tictactoe-backend/internal/apperror"
)

func (that *Server) handleConnect(_ context.Context, cl *client, msg *Message) error {
	log := that.logger.With("method", "handleConnect")

	var payloadReq Payload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payloadReq); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
	}

	cl.clientID = that.roomUseCase.EnsureClientID(payloadReq.ClientID)

	if cl.clientID == payloadReq.ClientID {
		log.Info("client reconnected", "clientID", cl.clientID)
	} else {
		log.Info("registered new client", "clientID", cl.clientID)
	}

	return cl.send(msg.Action, Payload{ClientID: cl.clientID})
}

// handleJoinRoom seats the client in the room and subscribes it to the
// room's snapshot stream. A full room degrades to spectator mode: the
// client observes but holds no side.
func (that *Server) handleJoinRoom(ctx context.Context, cl *client, msg *Message) error {
	log := that.logger.With("method", "handleJoinRoom")

	var payloadReq Payload
	if err := json.Unmarshal(msg.Payload, &payloadReq); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if cl.clientID == "" {
		return cl.sendError(msg.Action, "connect first")
	}

	room, side, err := that.roomUseCase.JoinRoom(ctx, payloadReq.Code, cl.clientID)

	switch {
	case errors.Is(err, apperror.ErrRoomFull), errors.Is(err, apperror.ErrNoSlotAvailable):
		room, err = that.roomUseCase.GetRoom(ctx, payloadReq.Code)
		if err != nil {
			log.Error("failed to get room for spectator", "error", err)
			return cl.sendError(msg.Action, "failed to join room")
		}
		side = ""
		log.Info("client joined as spectator", "code", room.Code)
	case err != nil:
		log.Warn("join rejected", "code", payloadReq.Code, "error", err)
		return cl.sendError(msg.Action, err.Error())
	}

	if err = that.watchRoom(ctx, cl, room.Code); err != nil {
		log.Error("failed to subscribe to room", "code", room.Code, "error", err)
		return cl.sendError(msg.Action, "failed to subscribe to room")
	}

	log.Info("client joined room", "code", room.Code, "side", side)

	return cl.send(msg.Action, Payload{ClientID: cl.clientID, Code: room.Code, Side: side, Room: room})
}

// watchRoom pumps every committed snapshot of the room to the client. The
// client's view is always derived from this stream, never from the reply
// to its own write.
func (that *Server) watchRoom(ctx context.Context, cl *client, code string) error {
	log := that.logger.With("method", "watchRoom", "code", code)

	updates, stop, err := that.roomUseCase.WatchRoom(ctx, code)
	if err != nil {
		return err
	}

	cl.watch(stop)

	go func() {
		for room := range updates {
			if sendErr := cl.send(actionRoomUpdate, Payload{Code: room.Code, Room: room}); sendErr != nil {
				log.Warn("failed to push room update", "error", sendErr)
				return
			}
		}
	}()

	return nil
}

func (that *Server) handleMove(ctx context.Context, cl *client, msg *Message) error {
	log := that.logger.With("method", "handleMove")

	var payloadReq Payload
	if err := json.Unmarshal(msg.Payload, &payloadReq); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if cl.clientID == "" {
		return cl.sendError(msg.Action, "connect first")
	}

	if payloadReq.Cell == nil {
		return cl.sendError(msg.Action, "cell is required")
	}

	room, err := that.roomUseCase.SubmitMove(ctx, payloadReq.Code, cl.clientID, *payloadReq.Cell)
	if err != nil {
		if isMoveRejection(err) {
			log.Info("move rejected", "code", payloadReq.Code, "cell", *payloadReq.Cell, "reason", err)
			return cl.sendError(msg.Action, err.Error())
		}

		log.Error("failed to submit move", "error", err)
		return cl.sendError(msg.Action, "failed to submit move")
	}

	log.Info("move accepted", "code", room.Code, "cell", *payloadReq.Cell)

	return cl.send(msg.Action, Payload{Code: room.Code, Room: room})
}

func (that *Server) handleReset(ctx context.Context, cl *client, msg *Message) error {
	log := that.logger.With("method", "handleReset")

	var payloadReq Payload
	if err := json.Unmarshal(msg.Payload, &payloadReq); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if cl.clientID == "" {
		return cl.sendError(msg.Action, "connect first")
	}

	room, err := that.roomUseCase.SubmitReset(ctx, payloadReq.Code, cl.clientID)
	if err != nil {
		log.Warn("reset rejected", "code", payloadReq.Code, "error", err)
		return cl.sendError(msg.Action, err.Error())
	}

	log.Info("room reset", "code", room.Code)

	return cl.send(msg.Action, Payload{Code: room.Code, Room: room})
}

func (that *Server) handleLeave(ctx context.Context, cl *client, msg *Message) error {
	log := that.logger.With("method", "handleLeave")

	var payloadReq Payload
	if err := json.Unmarshal(msg.Payload, &payloadReq); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if cl.clientID == "" {
		return cl.sendError(msg.Action, "connect first")
	}

	if err := that.roomUseCase.LeaveRoom(ctx, payloadReq.Code, cl.clientID); err != nil {
		log.Warn("leave rejected", "code", payloadReq.Code, "error", err)
		return cl.sendError(msg.Action, err.Error())
	}

	cl.stopWatching()

	log.Info("client left room", "code", payloadReq.Code)

	return cl.send(msg.Action, Payload{Code: payloadReq.Code})
}

// isMoveRejection separates expected concurrent-interaction outcomes from
// genuine failures. Rejections carry no state change and want no retry.
func isMoveRejection(err error) bool {
	return errors.Is(err, apperror.ErrInvalidCell) ||
		errors.Is(err, apperror.ErrCellOccupied) ||
		errors.Is(err, apperror.ErrNotYourTurn) ||
		errors.Is(err, apperror.ErrGameOver) ||
		errors.Is(err, apperror.ErrGameNotReady) ||
		errors.Is(err, apperror.ErrNoSlotAssigned) ||
		errors.Is(err, apperror.ErrRoomConflict)
}
