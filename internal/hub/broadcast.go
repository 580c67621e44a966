package hub

import (
	"github.com/veilchess/veilchess-server/internal/game"
	"github.com/veilchess/veilchess-server/internal/room"
	"github.com/veilchess/veilchess-server/pkg/wiredto"
)

// Broadcaster fans events out to the three audiences. The scopes are a
// hard boundary: nothing ever crosses from the player channel to the
// spectator channel or back.
type Broadcaster struct {
	mgr *Manager
}

func NewBroadcaster(mgr *Manager) *Broadcaster {
	return &Broadcaster{mgr: mgr}
}

// RoomWide reaches both seats and every spectator.
func (b *Broadcaster) RoomWide(roomID string, ev wiredto.Envelope) {
	for _, m := range b.mgr.members(roomID) {
		m.sender.Send(ev)
	}
}

// Players reaches the two seats only.
func (b *Broadcaster) Players(roomID string, ev wiredto.Envelope) {
	for _, m := range b.mgr.members(roomID) {
		if m.role == game.RoleWhite || m.role == game.RoleBlack {
			m.sender.Send(ev)
		}
	}
}

// Spectators reaches spectators only.
func (b *Broadcaster) Spectators(roomID string, ev wiredto.Envelope) {
	for _, m := range b.mgr.members(roomID) {
		if m.role == game.RoleSpectator {
			m.sender.Send(ev)
		}
	}
}

// ToSeat reaches exactly one seat.
func (b *Broadcaster) ToSeat(roomID string, color game.Color, ev wiredto.Envelope) {
	for _, m := range b.mgr.members(roomID) {
		if m.role == game.Role(color) {
			m.sender.Send(ev)
		}
	}
}

// Board sends each recipient the position as that recipient may see
// it: the disguise overlay is applied per viewer, never to the
// canonical position.
func (b *Broadcaster) Board(r *room.Room, eventType string) {
	for _, m := range b.mgr.members(r.ID) {
		fen := r.MaskedPosition(m.role)
		m.sender.Send(wiredto.Event(eventType, wiredto.BoardState{Position: fen}))
	}
}

// VariantState sends each recipient its own filtered view of the
// marked pieces: owners see their square while Assigned, everyone else
// only after Revealed or Captured.
func (b *Broadcaster) VariantState(r *room.Room) {
	for _, m := range b.mgr.members(r.ID) {
		view := r.ViewFor(m.role)
		m.sender.Send(wiredto.Event(wiredto.TypeVariantState, viewDTO(view)))
	}
}

// FinalVariantState discloses everything room-wide, for terminal
// broadcasts only.
func (b *Broadcaster) FinalVariantState(r *room.Room) {
	ev := wiredto.Event(wiredto.TypeVariantState, viewDTO(r.FinalView()))
	b.RoomWide(r.ID, ev)
}

func viewDTO(v game.View) wiredto.VariantState {
	return wiredto.VariantState{
		MarkedSquareWhite: v.MarkedWhite,
		MarkedSquareBlack: v.MarkedBlack,
		PhaseWhite:        v.PhaseWhite.String(),
		PhaseBlack:        v.PhaseBlack.String(),
	}
}
