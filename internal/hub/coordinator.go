// Package hub is the session coordinator: it owns the websocket edge,
// routes inbound events to rooms, and fans results back out to the
// right audiences. Rooms never see sockets and sockets never see game
// state; this package is the only place the two meet.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/veilchess/veilchess-server/internal/archive"
	"github.com/veilchess/veilchess-server/internal/clock"
	"github.com/veilchess/veilchess-server/internal/config"
	"github.com/veilchess/veilchess-server/internal/engine"
	"github.com/veilchess/veilchess-server/internal/game"
	"github.com/veilchess/veilchess-server/internal/matchmaking"
	"github.com/veilchess/veilchess-server/internal/obslog"
	"github.com/veilchess/veilchess-server/internal/room"
	"github.com/veilchess/veilchess-server/internal/rules"
	"github.com/veilchess/veilchess-server/pkg/wiredto"
)

const persistTimeout = 5 * time.Second

// Coordinator wires the room registry, the clock service, matchmaking,
// rules validation and the archive behind a single websocket endpoint.
type Coordinator struct {
	cfg       *config.AppConfig
	clk       clockwork.Clock
	store     *room.Store
	clocks    *clock.Service
	queue     matchmaking.Queue
	validator rules.Validator
	archiver  archive.Archiver
	engine    engine.Suggester // nil when no engine is configured

	mgr *Manager
	bc  *Broadcaster

	graceMu sync.Mutex
	grace   map[string]clockwork.Timer

	// pending tracks, per connection, a matchmaking slot the connection
	// created and has not yet turned into a live room.
	pendingMu sync.Mutex
	pending   map[string]pendingSlot
}

type pendingSlot struct {
	variant game.Variant
	roomID  string
}

func NewCoordinator(
	cfg *config.AppConfig,
	clk clockwork.Clock,
	store *room.Store,
	clocks *clock.Service,
	queue matchmaking.Queue,
	validator rules.Validator,
	archiver archive.Archiver,
	suggester engine.Suggester,
) *Coordinator {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	mgr := NewManager()
	return &Coordinator{
		cfg:       cfg,
		clk:       clk,
		store:     store,
		clocks:    clocks,
		queue:     queue,
		validator: validator,
		archiver:  archiver,
		engine:    suggester,
		mgr:       mgr,
		bc:        NewBroadcaster(mgr),
		grace:     make(map[string]clockwork.Timer),
		pending:   make(map[string]pendingSlot),
	}
}

// ServeWS upgrades the request and runs the connection until the
// transport drops.
func (c *Coordinator) ServeWS(w http.ResponseWriter, r *http.Request) {
	sock, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		obslog.L().Warn("ws_accept_failed", zap.Error(err))
		return
	}

	connID := uuid.NewString()
	sender := newWSSender(connID, sock)
	c.mgr.Register(sender)
	obslog.L().Info("conn_open", zap.String("conn_id", connID))

	ctx := r.Context()
	go sender.writePump(ctx)

	for {
		var env wiredto.Envelope
		if err := wsjson.Read(ctx, sock, &env); err != nil {
			break
		}
		c.dispatch(ctx, sender, env)
	}

	sender.close(websocket.StatusNormalClosure, "")
	c.handleTransportDrop(connID)
	obslog.L().Info("conn_close", zap.String("conn_id", connID))
}

// dispatch routes one inbound event. A panic in a handler is contained
// here so a fault in one room never takes down the others.
func (c *Coordinator) dispatch(ctx context.Context, s Sender, env wiredto.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			obslog.L().Error("event_panic",
				zap.String("conn_id", s.ID()),
				zap.String("event", env.Type),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	switch env.Type {
	case wiredto.TypeJoinRoom:
		var p wiredto.JoinRoom
		if decode(env, &p) {
			c.handleJoin(s, p)
		}
	case wiredto.TypeRejoin:
		var p wiredto.Rejoin
		if decode(env, &p) {
			c.handleRejoin(s, p)
		}
	case wiredto.TypeLeaveRoom:
		var p wiredto.LeaveRoom
		if decode(env, &p) {
			c.handleLeave(s.ID(), p)
		}
	case wiredto.TypeMove:
		var p wiredto.Move
		if decode(env, &p) {
			c.handleMove(s, p)
		}
	case wiredto.TypeAssignHiddenPiece:
		var p wiredto.AssignHiddenPiece
		if decode(env, &p) {
			c.handleAssignHiddenPiece(s.ID(), p)
		}
	case wiredto.TypeRevealPiece:
		var p wiredto.RevealPiece
		if decode(env, &p) {
			c.handleRevealPiece(s.ID(), p)
		}
	case wiredto.TypeRelocateMarkedSquare:
		var p wiredto.RelocateMarkedSquare
		if decode(env, &p) {
			c.handleRelocate(s.ID(), p)
		}
	case wiredto.TypeCaptureMarkedPiece:
		var p wiredto.CaptureMarkedPiece
		if decode(env, &p) {
			c.handleCaptureMarked(s.ID(), p)
		}
	case wiredto.TypeScoreGoal:
		var p wiredto.ScoreGoal
		if decode(env, &p) {
			c.handleScoreGoal(s.ID(), p)
		}
	case wiredto.TypeCheckmated:
		var p wiredto.Checkmated
		if decode(env, &p) {
			c.handleCheckmated(s.ID(), p)
		}
	case wiredto.TypeDrawGame:
		var p wiredto.DrawGame
		if decode(env, &p) {
			c.handleDrawGame(s.ID(), p)
		}
	case wiredto.TypeTimeOut:
		var p wiredto.TimeOut
		if decode(env, &p) {
			c.handleTimeOut(s.ID(), p)
		}
	case wiredto.TypeResign:
		var p wiredto.Resign
		if decode(env, &p) {
			c.handleResign(s.ID(), p)
		}
	case wiredto.TypeDrawRequest:
		var p wiredto.DrawRequest
		if decode(env, &p) {
			c.handleDrawRequest(s.ID(), p)
		}
	case wiredto.TypeDrawDeclined:
		var p wiredto.DrawDeclined
		if decode(env, &p) {
			c.handleDrawDeclined(s.ID(), p)
		}
	case wiredto.TypeSendChat:
		var p wiredto.SendChat
		if decode(env, &p) {
			c.handleChat(s, p)
		}
	case wiredto.TypeUpdateDisplayName:
		var p wiredto.UpdateDisplayName
		if decode(env, &p) {
			c.handleRename(s.ID(), p)
		}
	case wiredto.TypeUpdateTime:
		var p wiredto.UpdateTime
		if decode(env, &p) {
			c.handleUpdateTime(p)
		}
	case wiredto.TypeEnqueueForVariant:
		var p wiredto.EnqueueForVariant
		if decode(env, &p) {
			c.handleEnqueue(ctx, s, p)
		}
	case wiredto.TypeRequestTimeSync:
		var p wiredto.RequestTimeSync
		if decode(env, &p) {
			c.handleTimeSync(s, p)
		}
	case wiredto.TypeRequestEngineMove:
		var p wiredto.RequestEngineMove
		if decode(env, &p) {
			c.handleEngineMove(s.ID(), p)
		}
	default:
		obslog.L().Debug("event_unknown", zap.String("event", env.Type))
	}
}

func decode(env wiredto.Envelope, out any) bool {
	if len(env.Data) == 0 {
		return false
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		obslog.L().Debug("event_decode_failed", zap.String("event", env.Type), zap.Error(err))
		return false
	}
	return true
}

func (c *Coordinator) handleJoin(s Sender, p wiredto.JoinRoom) {
	roomID := strings.TrimSpace(p.RoomID)
	if roomID == "" {
		return
	}
	variant, ok := matchmaking.VariantOf(roomID)
	if !ok {
		variant = game.VariantStandard
	}

	r, created := c.store.CreateIfAbsent(roomID, variant)
	if r == nil {
		s.Send(wiredto.Event(wiredto.TypeMustRefresh, nil))
		return
	}
	if created {
		c.clocks.Attach(roomID, c.cfg.BudgetFor(variant))
	}

	role, paired := r.JoinSeat(s.ID(), strings.TrimSpace(p.DisplayName))
	c.mgr.Bind(s.ID(), roomID, role)

	c.sendRoomState(s, r, role)
	c.broadcastPlayers(r)

	if paired {
		c.clocks.Begin(roomID, game.SideToMove(r.Position()))
		c.broadcastTime(roomID, wiredto.TypeTimeSync)
	}
}

func (c *Coordinator) handleRejoin(s Sender, p wiredto.Rejoin) {
	r, err := c.store.Get(strings.TrimSpace(p.RoomID))
	if err != nil {
		s.Send(wiredto.Event(wiredto.TypeMustRefresh, nil))
		return
	}

	claimed, _ := game.ParseRole(p.ClaimedRole)
	role := r.Rejoin(s.ID(), claimed, strings.TrimSpace(p.DisplayName))
	c.mgr.Bind(s.ID(), r.ID, role)
	if color, ok := role.Color(); ok {
		c.cancelGrace(r.ID, color)
	}

	c.sendRoomState(s, r, role)
	c.broadcastPlayers(r)
}

// sendRoomState resynchronizes one connection: role, board as that role
// may see it, variant view, last move, chat partition and clock.
func (c *Coordinator) sendRoomState(s Sender, r *room.Room, role game.Role) {
	s.Send(wiredto.Event(wiredto.TypeAssignedRole, wiredto.AssignedRole{Role: string(role)}))
	s.Send(wiredto.Event(wiredto.TypeBoardState, wiredto.BoardState{Position: r.MaskedPosition(role)}))
	s.Send(wiredto.Event(wiredto.TypeVariantState, viewDTO(r.ViewFor(role))))

	if from, to := r.LastMove(); from != "" {
		s.Send(wiredto.Event(wiredto.TypeLastMoveSquares, wiredto.LastMoveSquares{From: from, To: to}))
	}

	audience := "spectator"
	if role != game.RoleSpectator {
		audience = "player"
	}
	s.Send(wiredto.Event(wiredto.TypeChatHistory, chatHistoryDTO(r.ChatHistory(audience))))

	if snap, ok := c.clocks.Sync(r.ID); ok {
		s.Send(wiredto.Event(wiredto.TypeTimeSync, timeDTO(snap)))
	}
}

func (c *Coordinator) handleLeave(connID string, p wiredto.LeaveRoom) {
	r, err := c.store.Get(strings.TrimSpace(p.RoomID))
	if err != nil {
		return
	}
	role, bothEmpty := r.Leave(connID)
	if role == "" {
		// not a member of this room; the caller keeps whatever binding
		// it actually holds
		return
	}
	c.mgr.Unbind(connID)
	if _, ok := role.Color(); ok {
		c.clocks.Reset(r.ID)
	}
	if bothEmpty {
		c.store.Delete(r.ID)
		c.mgr.UnbindRoom(r.ID)
		return
	}
	c.broadcastPlayers(r)
	c.bc.Board(r, wiredto.TypeBoardState)
}

// handleTransportDrop runs when the socket dies without a leaveRoom.
// Seat identity is preserved for the grace window so the player can
// rejoin; only when the window lapses is the seat vacated.
func (c *Coordinator) handleTransportDrop(connID string) {
	roomID, _, bound := c.mgr.BindingOf(connID)
	c.mgr.Unregister(connID)
	c.releasePendingSlot(connID)
	if !bound {
		return
	}
	r, err := c.store.Get(roomID)
	if err != nil {
		return
	}
	role, ok := r.Disconnect(connID)
	if !ok {
		return
	}
	color, seated := role.Color()
	if !seated {
		return
	}
	obslog.L().Info("seat_disconnected",
		zap.String("room_id", roomID),
		zap.String("color", string(color)),
		zap.Duration("grace", c.cfg.DisconnectGrace))
	c.scheduleGrace(roomID, color)
}

func graceKey(roomID string, color game.Color) string {
	return roomID + "/" + string(color)
}

func (c *Coordinator) scheduleGrace(roomID string, color game.Color) {
	c.graceMu.Lock()
	defer c.graceMu.Unlock()
	key := graceKey(roomID, color)
	if t, ok := c.grace[key]; ok {
		t.Stop()
	}
	c.grace[key] = c.clk.AfterFunc(c.cfg.DisconnectGrace, func() {
		c.onGraceExpired(roomID, color)
	})
}

func (c *Coordinator) cancelGrace(roomID string, color game.Color) {
	c.graceMu.Lock()
	defer c.graceMu.Unlock()
	key := graceKey(roomID, color)
	if t, ok := c.grace[key]; ok {
		t.Stop()
		delete(c.grace, key)
	}
}

func (c *Coordinator) onGraceExpired(roomID string, color game.Color) {
	c.graceMu.Lock()
	delete(c.grace, graceKey(roomID, color))
	c.graceMu.Unlock()

	r, err := c.store.Get(roomID)
	if err != nil {
		return
	}
	if r.Ended() || r.SeatConnected(color) {
		return
	}
	obslog.L().Info("seat_vacated", zap.String("room_id", roomID), zap.String("color", string(color)))
	bothEmpty := r.VacateSeat(color)
	c.clocks.Reset(roomID)
	if bothEmpty {
		c.store.Delete(roomID)
		c.mgr.UnbindRoom(roomID)
		return
	}
	c.broadcastPlayers(r)
	c.bc.Board(r, wiredto.TypeBoardState)
}

func (c *Coordinator) handleMove(s Sender, p wiredto.Move) {
	r, err := c.store.Get(strings.TrimSpace(p.RoomID))
	if err != nil {
		s.Send(wiredto.Event(wiredto.TypeMustRefresh, nil))
		return
	}
	color, ok := c.seatColor(s.ID(), r)
	if !ok || r.Ended() {
		return
	}
	oldFEN := r.Position()
	if game.SideToMove(oldFEN) != color {
		return
	}
	verdict, err := c.validator.Validate(oldFEN, p.From, p.To, p.NewPosition, r.Variant.Lenient())
	if err != nil || !verdict.Legal {
		return
	}
	c.applyMove(r, color, oldFEN, p.From, p.To, verdict)
}

// applyMove installs an accepted move and drives everything downstream:
// the variant machinery, the clock, the audience broadcasts and any
// terminal outcome. Shared by the human path and the engine path.
func (c *Coordinator) applyMove(r *room.Room, color game.Color, oldFEN, from, to string, verdict rules.Verdict) {
	mv := game.MoveDescriptor{
		From:          from,
		To:            to,
		MovedBy:       color,
		CaptureSquare: verdict.CaptureSquare,
		CaptureColor:  verdict.CaptureColor,
		PawnLike:      verdict.PawnLike,
	}
	out, applied := r.ApplyValidatedMove(oldFEN, verdict.NewFEN, mv)
	if !applied {
		return
	}

	snap, expired := c.clocks.ApplyMove(r.ID, color)
	if expired {
		c.finish(r, color.Opponent(), false, "timeout")
		return
	}

	c.bc.Board(r, wiredto.TypeMoveApplied)
	c.bc.RoomWide(r.ID, wiredto.Event(wiredto.TypeLastMoveSquares, wiredto.LastMoveSquares{From: from, To: to}))
	c.bc.RoomWide(r.ID, wiredto.Event(wiredto.TypeTimeUpdate, timeDTO(snap)))
	if r.Variant.Masked() {
		c.bc.VariantState(r)
	}

	switch {
	case out.Terminal:
		c.finish(r, out.Winner, false, out.Reason)
	case verdict.Terminal:
		c.finish(r, verdict.Winner, verdict.Draw, verdict.Reason)
	}
}

func (c *Coordinator) handleAssignHiddenPiece(connID string, p wiredto.AssignHiddenPiece) {
	r, err := c.store.Get(strings.TrimSpace(p.RoomID))
	if err != nil {
		return
	}
	color := game.Black
	if p.IsWhite {
		color = game.White
	}
	if seat, ok := c.seatColor(connID, r); !ok || seat != color {
		return
	}
	square, ok := game.PawnSquare(p.Index, color)
	if !ok {
		return
	}
	if r.AssignMask(color, square) {
		c.bc.VariantState(r)
	}
}

func (c *Coordinator) handleRevealPiece(connID string, p wiredto.RevealPiece) {
	r, color, ok := c.resolveSeatEvent(connID, p.RoomID, p.Color)
	if !ok {
		return
	}
	if r.RevealMask(color) {
		c.bc.VariantState(r)
		c.bc.Board(r, wiredto.TypeBoardState)
	}
}

func (c *Coordinator) handleRelocate(connID string, p wiredto.RelocateMarkedSquare) {
	r, color, ok := c.resolveSeatEvent(connID, p.RoomID, p.Color)
	if !ok {
		return
	}
	if r.RelocateMask(color, strings.TrimSpace(p.NewSquare)) {
		c.bc.VariantState(r)
	}
}

func (c *Coordinator) handleCaptureMarked(connID string, p wiredto.CaptureMarkedPiece) {
	r, err := c.store.Get(strings.TrimSpace(p.RoomID))
	if err != nil {
		return
	}
	if _, ok := c.seatColor(connID, r); !ok {
		return
	}
	victim, ok := game.ParseColor(p.Color)
	if !ok {
		return
	}
	out := r.CaptureMask(victim)
	if out.Captured {
		c.bc.VariantState(r)
		c.bc.Board(r, wiredto.TypeBoardState)
	}
	if out.Terminal {
		c.finish(r, out.Winner, false, out.Reason)
	}
}

func (c *Coordinator) handleScoreGoal(connID string, p wiredto.ScoreGoal) {
	r, color, ok := c.resolveSeatEvent(connID, p.RoomID, p.Color)
	if !ok {
		return
	}
	if out := r.ScoreGoal(color); out.Terminal {
		c.finish(r, out.Winner, false, out.Reason)
	}
}

func (c *Coordinator) handleCheckmated(connID string, p wiredto.Checkmated) {
	r, err := c.store.Get(strings.TrimSpace(p.RoomID))
	if err != nil {
		return
	}
	if _, ok := c.seatColor(connID, r); !ok {
		return
	}
	winner, ok := game.ParseColor(p.WinnerColor)
	if !ok {
		return
	}
	c.finish(r, winner, false, "checkmate")
}

func (c *Coordinator) handleDrawGame(connID string, p wiredto.DrawGame) {
	r, err := c.store.Get(strings.TrimSpace(p.RoomID))
	if err != nil {
		return
	}
	if _, ok := c.seatColor(connID, r); !ok {
		return
	}
	c.finish(r, "", true, "draw agreed")
}

// handleTimeOut treats the client claim as a prompt: the server charges
// its own clock and only ends the game when its own measurement agrees.
func (c *Coordinator) handleTimeOut(connID string, p wiredto.TimeOut) {
	r, err := c.store.Get(strings.TrimSpace(p.RoomID))
	if err != nil {
		return
	}
	if _, ok := c.seatColor(connID, r); !ok {
		return
	}
	snap, loser, expired := c.clocks.Tick(r.ID)
	if expired {
		c.finish(r, loser.Opponent(), false, "timeout")
		return
	}
	c.bc.RoomWide(r.ID, wiredto.Event(wiredto.TypeTimeUpdate, timeDTO(snap)))
}

func (c *Coordinator) handleResign(connID string, p wiredto.Resign) {
	r, err := c.store.Get(strings.TrimSpace(p.RoomID))
	if err != nil {
		return
	}
	color, ok := c.seatColor(connID, r)
	if !ok {
		return
	}
	c.finish(r, color.Opponent(), false, "resignation")
}

func (c *Coordinator) handleDrawRequest(connID string, p wiredto.DrawRequest) {
	r, color, ok := c.resolveSeatEvent(connID, p.RoomID, p.Color)
	if !ok || r.Ended() {
		return
	}
	c.bc.ToSeat(r.ID, color.Opponent(), wiredto.Event(wiredto.TypeDrawOffered, nil))
}

func (c *Coordinator) handleDrawDeclined(connID string, p wiredto.DrawDeclined) {
	r, color, ok := c.resolveSeatEvent(connID, p.RoomID, p.Color)
	if !ok {
		return
	}
	c.bc.ToSeat(r.ID, color.Opponent(), wiredto.Event(wiredto.TypeDrawDeclined, nil))
}

// handleChat appends to the sender's partition and fans out to that
// partition only. Players and spectators never see each other's log.
func (c *Coordinator) handleChat(s Sender, p wiredto.SendChat) {
	r, err := c.store.Get(strings.TrimSpace(p.RoomID))
	if err != nil {
		s.Send(wiredto.Event(wiredto.TypeMustRefresh, nil))
		return
	}
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return
	}
	role, ok := r.RoleOf(s.ID())
	if !ok {
		return
	}
	audience := "spectator"
	if role != game.RoleSpectator {
		audience = "player"
	}
	author := r.DisplayNameOf(s.ID())
	if author == "" {
		author = "anonymous"
	}
	entry := r.AppendChat(author, text, audience, c.clk.Now())
	ev := wiredto.Event(wiredto.TypeChatMessage, chatDTO(entry))
	if audience == "player" {
		c.bc.Players(r.ID, ev)
	} else {
		c.bc.Spectators(r.ID, ev)
	}
}

func (c *Coordinator) handleRename(connID string, p wiredto.UpdateDisplayName) {
	r, err := c.store.Get(strings.TrimSpace(p.RoomID))
	if err != nil {
		return
	}
	role, ok := game.ParseRole(p.Role)
	if !ok {
		return
	}
	color, ok := role.Color()
	if !ok {
		return
	}
	if seat, bound := c.seatColor(connID, r); !bound || seat != color {
		return
	}
	if r.Rename(color, strings.TrimSpace(p.DisplayName)) {
		c.broadcastPlayers(r)
	}
}

// handleUpdateTime ignores the client-reported values entirely and just
// takes a server-side tick, broadcasting the authoritative state back.
func (c *Coordinator) handleUpdateTime(p wiredto.UpdateTime) {
	roomID := strings.TrimSpace(p.RoomID)
	r, err := c.store.Get(roomID)
	if err != nil {
		return
	}
	snap, loser, expired := c.clocks.Tick(roomID)
	if expired {
		c.finish(r, loser.Opponent(), false, "timeout")
		return
	}
	c.bc.RoomWide(roomID, wiredto.Event(wiredto.TypeTimeUpdate, timeDTO(snap)))
}

func (c *Coordinator) handleEnqueue(ctx context.Context, s Sender, p wiredto.EnqueueForVariant) {
	variant, ok := game.ParseVariant(p.Variant)
	if !ok {
		return
	}
	roomID, paired, err := c.queue.EnqueueOrPair(ctx, variant, s.ID())
	if err != nil {
		obslog.L().Warn("matchmaking_enqueue_failed", zap.String("variant", string(variant)), zap.Error(err))
		return
	}
	if !paired {
		c.pendingMu.Lock()
		c.pending[s.ID()] = pendingSlot{variant: variant, roomID: roomID}
		c.pendingMu.Unlock()
	}
	obslog.L().Info("matchmaking_result",
		zap.String("variant", string(variant)),
		zap.String("room_id", roomID),
		zap.Bool("paired", paired))
	s.Send(wiredto.Event(wiredto.TypePairedRoomID, wiredto.PairedRoomID{RoomID: roomID}))
}

// releasePendingSlot clears a matchmaking slot whose creator dropped
// before ever joining the pending room. Once the room exists, slot
// cleanup belongs to the room delete hook instead.
func (c *Coordinator) releasePendingSlot(connID string) {
	c.pendingMu.Lock()
	p, ok := c.pending[connID]
	if ok {
		delete(c.pending, connID)
	}
	c.pendingMu.Unlock()
	if !ok {
		return
	}
	if _, err := c.store.Get(p.roomID); err == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.queue.Clear(ctx, p.variant, p.roomID); err != nil {
		obslog.L().Warn("matchmaking_clear_failed",
			zap.String("room_id", p.roomID),
			zap.Error(err))
	}
}

func (c *Coordinator) handleTimeSync(s Sender, p wiredto.RequestTimeSync) {
	snap, ok := c.clocks.Sync(strings.TrimSpace(p.RoomID))
	if !ok {
		return
	}
	s.Send(wiredto.Event(wiredto.TypeTimeSync, timeDTO(snap)))
}

// handleEngineMove asks the external engine to play the side to move.
// The call runs off the event loop; if the room is gone or the position
// has changed by the time the suggestion arrives, it is discarded.
func (c *Coordinator) handleEngineMove(connID string, p wiredto.RequestEngineMove) {
	if c.engine == nil {
		return
	}
	r, err := c.store.Get(strings.TrimSpace(p.RoomID))
	if err != nil {
		return
	}
	if _, ok := c.seatColor(connID, r); !ok {
		return
	}
	if r.Ended() {
		return
	}
	fen := r.Position()
	botColor := game.SideToMove(fen)
	if !r.SetEnginePending(botColor) {
		return
	}

	go func() {
		defer r.ClearEnginePending(botColor)

		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.EngineTimeout)
		defer cancel()
		sug, err := c.engine.BestMove(ctx, fen)
		if err != nil {
			obslog.L().Warn("engine_request_failed", zap.String("room_id", r.ID), zap.Error(err))
			return
		}
		if _, err := c.store.Get(r.ID); err != nil {
			return
		}
		verdict, err := c.validator.Validate(fen, sug.From, sug.To, sug.FEN, r.Variant.Lenient())
		if err != nil || !verdict.Legal {
			obslog.L().Warn("engine_move_rejected",
				zap.String("room_id", r.ID),
				zap.String("from", sug.From),
				zap.String("to", sug.To))
			return
		}
		c.applyMove(r, botColor, fen, sug.From, sug.To, verdict)
	}()
}

// OnClockExpired is the clock watchdog's entry into the terminal path.
func (c *Coordinator) OnClockExpired(roomID string, loser game.Color) {
	r, err := c.store.Get(roomID)
	if err != nil {
		return
	}
	c.finish(r, loser.Opponent(), false, "timeout")
}

// finish is the single terminal path. It runs at most once per room:
// announce, persist best-effort, then delete.
func (c *Coordinator) finish(r *room.Room, winner game.Color, draw bool, reason string) {
	if !r.MarkEnded() {
		return
	}
	c.clocks.Pause(r.ID)

	msg := gameOverMessage(winner, draw, reason)
	obslog.L().Info("game_over",
		zap.String("room_id", r.ID),
		zap.String("variant", string(r.Variant)),
		zap.String("winner", string(winner)),
		zap.String("reason", reason))

	c.bc.RoomWide(r.ID, wiredto.Event(wiredto.TypeBoardState, wiredto.BoardState{Position: r.Position()}))
	c.bc.FinalVariantState(r)
	c.bc.RoomWide(r.ID, wiredto.Event(wiredto.TypeGameOver, wiredto.GameOver{Message: msg}))

	if r.MarkPersisted() {
		white, black := r.Names()
		res := &archive.Result{
			RoomID:        r.ID,
			Variant:       string(r.Variant),
			WhiteName:     white,
			BlackName:     black,
			Winner:        string(winner),
			Reason:        reason,
			FinalPosition: r.Position(),
			StartedAt:     r.CreatedAt(),
			EndedAt:       c.clk.Now(),
		}
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := c.archiver.SaveResult(ctx, res); err != nil {
			obslog.L().Error("archive_save_failed", zap.String("room_id", r.ID), zap.Error(err))
		}
		cancel()
	}

	c.store.Delete(r.ID)
	c.mgr.UnbindRoom(r.ID)
}

func gameOverMessage(winner game.Color, draw bool, reason string) string {
	if draw || !winner.Valid() {
		return fmt.Sprintf("Draw: %s", reason)
	}
	side := "White"
	if winner == game.Black {
		side = "Black"
	}
	return fmt.Sprintf("%s: %s wins", reason, side)
}

// seatColor resolves a connection to its seat in the given room;
// spectators and strangers get (_, false).
func (c *Coordinator) seatColor(connID string, r *room.Room) (game.Color, bool) {
	role, ok := r.RoleOf(connID)
	if !ok {
		return "", false
	}
	return role.Color()
}

// resolveSeatEvent is the common preamble for events that name a color
// and must come from the seat owning that color.
func (c *Coordinator) resolveSeatEvent(connID, roomID, colorField string) (*room.Room, game.Color, bool) {
	r, err := c.store.Get(strings.TrimSpace(roomID))
	if err != nil {
		return nil, "", false
	}
	color, ok := game.ParseColor(colorField)
	if !ok {
		return nil, "", false
	}
	if seat, bound := c.seatColor(connID, r); !bound || seat != color {
		return nil, "", false
	}
	return r, color, true
}

func (c *Coordinator) broadcastPlayers(r *room.Room) {
	white, black := r.Names()
	c.bc.RoomWide(r.ID, wiredto.Event(wiredto.TypePlayersInfo, wiredto.PlayersInfo{
		WhiteDisplayName: white,
		BlackDisplayName: black,
	}))
}

func (c *Coordinator) broadcastTime(roomID, eventType string) {
	if snap, ok := c.clocks.Sync(roomID); ok {
		c.bc.RoomWide(roomID, wiredto.Event(eventType, timeDTO(snap)))
	}
}

func timeDTO(snap clock.Snapshot) wiredto.TimeSync {
	return wiredto.TimeSync{
		WhiteRemaining: snap.WhiteRemaining.Milliseconds(),
		BlackRemaining: snap.BlackRemaining.Milliseconds(),
		LastMoveAt:     snap.LastMoveAt.UnixMilli(),
		ToMove:         string(snap.ToMove),
	}
}

func chatDTO(entry room.Chat) wiredto.ChatMessage {
	return wiredto.ChatMessage{
		Author:    entry.Author,
		Text:      entry.Text,
		Timestamp: entry.At.UnixMilli(),
		Audience:  entry.Audience,
	}
}

func chatHistoryDTO(entries []room.Chat) wiredto.ChatHistory {
	out := wiredto.ChatHistory{Messages: make([]wiredto.ChatMessage, 0, len(entries))}
	for _, entry := range entries {
		out.Messages = append(out.Messages, chatDTO(entry))
	}
	return out
}
