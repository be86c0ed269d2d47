package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/roomplay/tictactoe-backend/internal/usecase"
)

type Server struct {
	logger      *slog.Logger
	roomUseCase usecase.RoomUseCase
	authorize   Authorizer
}

func New(logger *slog.Logger, roomUseCase usecase.RoomUseCase, authorize Authorizer) *Server {
	return &Server{
		logger:      logger,
		roomUseCase: roomUseCase,
		authorize:   authorize,
	}
}

// Routes wires every endpoint, the administrative ones behind the injected
// authorizer.
func (that *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", that.handlePing)
	mux.HandleFunc("POST /rooms", that.handleCreateRoom)
	mux.HandleFunc("POST /rooms/{code}/join", that.handleJoinRoom)
	mux.HandleFunc("GET /rooms", that.requireAuthorization(that.handleListRooms))
	mux.HandleFunc("DELETE /rooms/{code}", that.requireAuthorization(that.handleDeleteRoom))

	return mux
}

// Start - starts the HTTP server and shuts it down when ctx is canceled.
func (that *Server) Start(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      that.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shut down HTTP server", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
