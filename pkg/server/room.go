package server

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/abennett/grimoire/pkg/catalog"
	"github.com/abennett/grimoire/pkg/engine"
	"github.com/abennett/grimoire/pkg/messages"
	"github.com/abennett/grimoire/pkg/rank"
)

const (
	PingInterval = 5 * time.Second
)

type userSession struct {
	wg      *sync.WaitGroup
	logger  *slog.Logger
	name    string
	writeCh chan []byte
}

type Room struct {
	mu           *sync.Mutex
	logger       *slog.Logger
	catalog      *catalog.Catalog
	eval         *engine.Evaluator
	recorder     Recorder
	userSessions map[string]userSession

	Version int
	Name    string
	Results map[string]messages.EvalResult
}

// RunSession reads the opening EvalRequest, validates it against the
// catalog, evaluates the roll, and keeps the connection in the room's
// broadcast set until the client leaves. Validation failures are
// rejected with an error frame before the evaluator ever runs.
func (r *Room) RunSession(ctx context.Context, conn *websocket.Conn) {
	_, b, err := conn.ReadMessage()
	if err != nil {
		r.logger.Error("failed to read initial message", "error", err)
		return
	}

	var msg messages.Message
	if err = msgpack.Unmarshal(b, &msg); err != nil {
		r.logger.Error("failed to parse initial message", "error", err, "payload", string(b))
		return
	}

	req, ok := msg.Payload.(messages.EvalRequest)
	if !ok {
		r.logger.Error("initial message was incorrect", "payload", string(b))
		return
	}

	action, weapon, mastery, err := r.validate(req)
	if err != nil {
		r.logger.Warn("rejecting request", "user", req.User, "error", err)
		r.writeError(conn, err)
		return
	}

	name := req.User
	r.logger.Debug("starting a session", "user", name)
	writeCh := make(chan []byte, 1)
	session := userSession{
		wg:      new(sync.WaitGroup),
		logger:  slog.With("user", req.User),
		name:    req.User,
		writeCh: writeCh,
	}

	r.startUserSession(ctx, session, conn)

	result, err := r.eval.Evaluate(action, weapon, mastery, req.OtherBonus)
	if err != nil {
		r.logger.Error("evaluation failed", "user", name, "action", action.Name, "error", err)
		// the write loop owns the connection now
		if b, merr := errorFrame(err); merr == nil {
			session.writeCh <- b
		}
		session.wg.Wait()
		r.stopUserSession(session)
		return
	}

	evalResult := messages.EvalResult{
		User:   name,
		Action: action.Name,
		Result: result,
	}
	if err = r.Update(evalResult); err != nil {
		r.logger.Error(err.Error())
		return
	}
	r.record(ctx, evalResult)

	session.wg.Wait()
	r.stopUserSession(session)
	r.logger.Info("closing session", "active_sessions", len(r.userSessions), "user", name)
}

func (r *Room) validate(req messages.EvalRequest) (engine.Action, rank.Tier, rank.Tier, error) {
	if strings.TrimSpace(req.User) == "" {
		return engine.Action{}, 0, 0, fmt.Errorf("user is required")
	}
	action, err := r.catalog.Get(req.Action)
	if err != nil {
		return engine.Action{}, 0, 0, err
	}
	weapon, err := rank.Parse(req.WeaponRank)
	if err != nil {
		return engine.Action{}, 0, 0, fmt.Errorf("weapon rank: %w", err)
	}
	mastery, err := rank.Parse(req.MasteryRank)
	if err != nil {
		return engine.Action{}, 0, 0, fmt.Errorf("mastery rank: %w", err)
	}
	if req.OtherBonus < 0 {
		return engine.Action{}, 0, 0, fmt.Errorf("%w: %d", engine.ErrNegativeBonus, req.OtherBonus)
	}
	return action, weapon, mastery, nil
}

func errorFrame(cause error) ([]byte, error) {
	msg := messages.Message{
		Type:    messages.ErrorMsgType,
		Version: "1",
		Payload: messages.ErrorReply{Message: cause.Error()},
	}
	return msgpack.Marshal(msg)
}

func (r *Room) writeError(conn *websocket.Conn, cause error) {
	b, err := errorFrame(cause)
	if err != nil {
		r.logger.Error("failed marshalling error reply", "error", err)
		return
	}
	if err = conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		r.logger.Error("failed writing error reply", "error", err)
	}
}

func (r *Room) record(ctx context.Context, result messages.EvalResult) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordRoll(ctx, r.Name, result); err != nil {
		r.logger.Error("failed recording roll", "user", result.User, "error", err)
	}
}

func (r *Room) startUserSession(ctx context.Context, session userSession, conn *websocket.Conn) {
	r.mu.Lock()
	r.userSessions[session.name] = session
	r.mu.Unlock()

	// Add to the waitGroup outside of goroutines here to avoid race condition on Add
	ctx, cancel := context.WithCancel(ctx)
	session.wg.Add(2)
	go r.userReadLoop(cancel, session, conn)
	go r.userWriteLoop(ctx, session, conn)
}

func (r *Room) stopUserSession(session userSession) {
	r.mu.Lock()
	delete(r.userSessions, session.name)
	r.mu.Unlock()
}

func (r *Room) userReadLoop(cancel func(), session userSession, conn *websocket.Conn) {
	defer cancel()
	defer session.wg.Done()
	defer session.logger.Debug("closing read loop")

	for {
		t, b, err := conn.ReadMessage()
		if closeErr, ok := err.(*websocket.CloseError); ok {
			if closeErr.Code == websocket.CloseNormalClosure {
				session.logger.Info("close message received")
				return
			}
		}
		if err != nil {
			r.logger.Error("failure in user read loop", "error", err)
			return
		}

		switch t {
		case websocket.CloseMessage:
			session.logger.Info("close message received")
			return
		case websocket.BinaryMessage:
			if err := r.HandleBinaryMessage(b); err != nil {
				session.logger.Error("failed handling message", "error", err)
			}
		}
	}
}

func (r *Room) HandleBinaryMessage(b []byte) error {
	var msg messages.Message
	err := msgpack.Unmarshal(b, &msg)
	if err != nil {
		return messages.ErrMessageInvalid
	}

	switch payload := msg.Payload.(type) {
	case messages.DoneRequest:
		return r.ToggleDone(payload.User)
	default:
		return fmt.Errorf("%w: %T", messages.ErrUnknownMessageType, payload)
	}
}

func (r *Room) userWriteLoop(ctx context.Context, session userSession, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer session.wg.Done()
	defer session.logger.Debug("closing write loop")
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			session.logger.Debug("write loop is done")
			return
		case b := <-session.writeCh:
			session.logger.Debug("writing message")
			err := conn.WriteMessage(websocket.BinaryMessage, b)
			if err != nil {
				r.logger.Error(err.Error())
				return
			}
		case <-ticker.C:
			session.logger.Debug("writing ping message")
			err := conn.WriteMessage(websocket.PingMessage, []byte{})
			if err == websocket.ErrCloseSent {
				session.logger.Debug("error close was sent")
				return
			}
			if err != nil {
				session.logger.Error("ping failed", "error", err)
				return
			}
		}
	}
}

// Update stores a user's evaluated roll and broadcasts the new state.
func (r *Room) Update(result messages.EvalResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Results[result.User] = result
	r.logger.Debug("added roll",
		"active_sessions", len(r.userSessions),
		"user", result.User,
		"result", result.Result.FinalResult)
	return r.broadcastLocked()
}

// ToggleDone flips a user's done flag and broadcasts the new state.
func (r *Room) ToggleDone(user string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.Results[user]
	if !ok {
		return fmt.Errorf("no roll for user %q", user)
	}
	result.IsDone = !result.IsDone
	r.Results[user] = result
	return r.broadcastLocked()
}

func (r *Room) broadcastLocked() error {
	r.Version++

	msg := messages.Message{
		Type:    messages.StateMsgType,
		Version: "1",
		Payload: r.ToState(),
	}
	b, err := msgpack.Marshal(msg)
	if err != nil {
		r.logger.Error("failed marshalling room", "error", err)
		return err
	}

	for _, us := range r.userSessions {
		r.logger.Debug("pushing update", "user", us.name, "version", r.Version)
		us.writeCh <- b
	}
	return nil
}

// ToState snapshots the room with results sorted best-first. Callers
// must hold the room lock.
func (r *Room) ToState() messages.RoomState {
	results := make([]messages.EvalResult, len(r.Results))
	var i int
	for _, result := range r.Results {
		results[i] = result
		i++
	}
	slices.SortFunc(results, func(a, b messages.EvalResult) int {
		return b.Result.FinalResult - a.Result.FinalResult
	})
	return messages.RoomState{
		Version: r.Version,
		Name:    r.Name,
		Results: results,
	}
}
