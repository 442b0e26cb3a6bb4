package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/abennett/grimoire/pkg/catalog"
	"github.com/abennett/grimoire/pkg/engine"
	"github.com/abennett/grimoire/pkg/messages"
)

var (
	ErrRoomExists    = errors.New("room exists")
	ErrRoomNotExists = errors.New("room does not exist")
)

// Recorder persists evaluated rolls verbatim. Implementations must not
// alter the result; the audit trail is replayed without recomputation.
type Recorder interface {
	RecordRoll(ctx context.Context, room string, result messages.EvalResult) error
}

type Server struct {
	rw       *sync.RWMutex
	upgrader websocket.Upgrader
	catalog  *catalog.Catalog
	eval     *engine.Evaluator
	recorder Recorder

	rooms map[string]*Room
}

func NewServer(cat *catalog.Catalog, eval *engine.Evaluator) *Server {
	return &Server{
		rw:      &sync.RWMutex{},
		catalog: cat,
		eval:    eval,
		rooms:   map[string]*Room{},
	}
}

// SetRecorder attaches an audit sink. Must be called before serving.
func (s *Server) SetRecorder(r Recorder) {
	s.recorder = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	roomName := chi.URLParam(r, "roomName")
	if roomName == "" {
		http.Error(w, "room name is required", http.StatusBadRequest)
		return
	}
	slog.Info("serving request", "roomName", roomName)
	var err error
	room, ok := s.rooms[roomName]
	if !ok {
		room, err = s.NewRoom(roomName)
		if err != nil {
			slog.Error("unable to create new room", "room_name", roomName, "error", err)
			http.Error(w, "unable to create new room", http.StatusInternalServerError)
			return
		}
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error(err.Error())
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer conn.Close()

	// Keep connection alive
	room.RunSession(r.Context(), conn)

	room.mu.Lock()
	if len(room.userSessions) == 0 {
		s.rw.Lock()
		delete(s.rooms, roomName)
		s.rw.Unlock()
		slog.Info("closed room", "room", roomName)
	}
	room.mu.Unlock()
}

func (s *Server) NewRoom(name string) (*Room, error) {
	s.rw.Lock()
	defer s.rw.Unlock()
	_, ok := s.rooms[name]
	if ok {
		return nil, ErrRoomExists
	}
	s.rooms[name] = &Room{
		mu:           new(sync.Mutex),
		logger:       slog.With("room", name),
		catalog:      s.catalog,
		eval:         s.eval,
		recorder:     s.recorder,
		userSessions: make(map[string]userSession),
		Version:      0,
		Name:         name,
		Results:      map[string]messages.EvalResult{},
	}
	return s.rooms[name], nil
}

// GetRooms snapshots every live room's state.
func (s *Server) GetRooms() map[string]messages.RoomState {
	s.rw.RLock()
	rooms := make(map[string]*Room, len(s.rooms))
	for name, room := range s.rooms {
		rooms[name] = room
	}
	s.rw.RUnlock()

	// Room locks are taken outside the server lock; session teardown
	// acquires them in the opposite order.
	states := make(map[string]messages.RoomState, len(rooms))
	for name, room := range rooms {
		room.mu.Lock()
		states[name] = room.ToState()
		room.mu.Unlock()
	}
	return states
}

func (s *Server) GetRoom(roomName string) (*Room, error) {
	s.rw.RLock()
	defer s.rw.RUnlock()
	room, ok := s.rooms[roomName]
	if !ok {
		return room, ErrRoomNotExists
	}
	return room, nil
}
