package room

import (
	"sync"
	"time"

	"github.com/veilchess/veilchess-server/internal/game"
)

const chatHistoryCap = 200

// Chat is one entry in a room's chat logs. Player and spectator logs
// are kept apart and never merged.
type Chat struct {
	Author   string
	Text     string
	At       time.Time
	Audience string // "player" or "spectator"
}

// Seat binds one connection identity to a color. Identity survives a
// transport drop (Connected=false) so the player can rejoin.
type Seat struct {
	ConnID      string
	DisplayName string
	Connected   bool
}

// Room is one match. All mutation goes through methods that take the
// room mutex, which gives the single-writer-per-room discipline: moves,
// ticks, joins and leaves serialize here and nowhere else.
type Room struct {
	ID      string
	Variant game.Variant

	mu            sync.Mutex
	seats         map[game.Color]*Seat
	spectators    map[string]string // connID -> display name
	position      string
	lastFrom      string
	lastTo        string
	vstate        *game.State
	chatPlayer    []Chat
	chatSpectator []Chat
	ended         bool
	persisted     bool
	enginePending map[game.Color]bool
	createdAt     time.Time
}

func newRoom(id string, v game.Variant, now time.Time) *Room {
	return &Room{
		ID:            id,
		Variant:       v,
		seats:         make(map[game.Color]*Seat, 2),
		spectators:    make(map[string]string),
		position:      game.StartFEN,
		vstate:        game.NewState(v),
		enginePending: make(map[game.Color]bool),
		createdAt:     now,
	}
}

// JoinSeat binds a connection to the first free seat, white before
// black; with no seat free the connection becomes a spectator. paired
// reports that this bind completed the pair.
func (r *Room) JoinSeat(connID, displayName string) (game.Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range []game.Color{game.White, game.Black} {
		if r.seats[c] == nil {
			r.seats[c] = &Seat{ConnID: connID, DisplayName: displayName, Connected: true}
			paired := r.seats[c.Opponent()] != nil
			return game.Role(c), paired
		}
	}
	r.spectators[connID] = displayName
	return game.RoleSpectator, false
}

// Rejoin rebinds a reconnected transport to the seat the client claims
// to have held. A seat that is still live under another connection is
// not stolen; the caller falls back to spectating.
func (r *Room) Rejoin(connID string, claimed game.Role, displayName string) game.Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	if color, ok := claimed.Color(); ok {
		seat := r.seats[color]
		if seat != nil && !seat.Connected {
			seat.ConnID = connID
			seat.Connected = true
			if displayName != "" {
				seat.DisplayName = displayName
			}
			return game.Role(color)
		}
	}
	r.spectators[connID] = displayName
	return game.RoleSpectator
}

// Leave is a voluntary exit. A seated player vacates the seat, the
// board resets to the initial layout and that color's variant state is
// cleared, leaving the room open for a fresh pairing. bothEmpty tells
// the caller the room should now be deleted.
func (r *Room) Leave(connID string) (role game.Role, bothEmpty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c, seat := range r.seats {
		if seat != nil && seat.ConnID == connID {
			r.seats[c] = nil
			r.position = game.StartFEN
			r.lastFrom, r.lastTo = "", ""
			r.vstate = game.NewState(r.Variant)
			bothEmpty = r.seats[c.Opponent()] == nil
			return game.Role(c), bothEmpty
		}
	}
	if _, ok := r.spectators[connID]; ok {
		delete(r.spectators, connID)
		return game.RoleSpectator, false
	}
	return "", false
}

// VacateSeat force-clears one seat, used when a disconnect grace window
// runs out. Same board reset semantics as a voluntary leave.
func (r *Room) VacateSeat(color game.Color) (bothEmpty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seats[color] == nil {
		return r.seats[color.Opponent()] == nil
	}
	r.seats[color] = nil
	r.position = game.StartFEN
	r.lastFrom, r.lastTo = "", ""
	r.vstate = game.NewState(r.Variant)
	return r.seats[color.Opponent()] == nil
}

// Disconnect is an involuntary transport drop. Seat identity is
// preserved for rejoin; only spectator entries are removed.
func (r *Room) Disconnect(connID string) (game.Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c, seat := range r.seats {
		if seat != nil && seat.ConnID == connID {
			seat.Connected = false
			return game.Role(c), true
		}
	}
	if _, ok := r.spectators[connID]; ok {
		delete(r.spectators, connID)
		return game.RoleSpectator, true
	}
	return "", false
}

// SeatConnected reports whether the seat for the color is bound to a
// live connection.
func (r *Room) SeatConnected(color game.Color) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	seat := r.seats[color]
	return seat != nil && seat.Connected
}

// RoleOf resolves the binding of a connection within this room.
func (r *Room) RoleOf(connID string) (game.Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for c, seat := range r.seats {
		if seat != nil && seat.ConnID == connID {
			return game.Role(c), true
		}
	}
	if _, ok := r.spectators[connID]; ok {
		return game.RoleSpectator, true
	}
	return "", false
}

// OccupiedSeats counts bound seats, connected or not.
func (r *Room) OccupiedSeats() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, seat := range r.seats {
		if seat != nil {
			n++
		}
	}
	return n
}

// Names returns the display names for both seats, empty when vacant.
func (r *Room) Names() (white, black string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.seats[game.White]; s != nil {
		white = s.DisplayName
	}
	if s := r.seats[game.Black]; s != nil {
		black = s.DisplayName
	}
	return white, black
}

// Rename updates one seat's display name.
func (r *Room) Rename(color game.Color, displayName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	seat := r.seats[color]
	if seat == nil || displayName == "" {
		return false
	}
	seat.DisplayName = displayName
	return true
}

// DisplayNameOf resolves a connection's display name within this room.
func (r *Room) DisplayNameOf(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, seat := range r.seats {
		if seat != nil && seat.ConnID == connID {
			return seat.DisplayName
		}
	}
	return r.spectators[connID]
}

// Position returns the canonical board position.
func (r *Room) Position() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position
}

// LastMove returns the from/to of the most recent applied move.
func (r *Room) LastMove() (string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastFrom, r.lastTo
}

// ApplyValidatedMove installs a move the validator already accepted.
// The caller supplies the position it validated against; a mismatch
// means another event won the race and the move is discarded, the same
// optimistic check the concurrency model requires.
func (r *Room) ApplyValidatedMove(oldFEN, newFEN string, mv game.MoveDescriptor) (game.Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended || r.position != oldFEN {
		return game.Outcome{}, false
	}
	r.position = newFEN
	r.lastFrom, r.lastTo = mv.From, mv.To
	return r.vstate.OnMove(mv), true
}

// Variant-state transitions, serialized under the room lock.

// AssignMask finalizes a side's marked square. When the variant's true
// piece differs from what stands there, the canonical board takes the
// true piece; the disguise lives only in the per-recipient overlay. A
// king never materializes this way, the rules engine tolerates one per
// side only.
func (r *Room) AssignMask(c game.Color, square string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return false
	}
	if !r.vstate.Assign(c, square) {
		return false
	}
	rule := r.vstate.Rule
	if rule.TruePiece != rule.Disguise && rule.TruePiece != 'K' {
		piece := rule.TruePiece
		if c == game.Black {
			piece += 'a' - 'A'
		}
		r.position = game.ReplacePieceFEN(r.position, square, piece)
	}
	return true
}

func (r *Room) RevealMask(c game.Color) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return false
	}
	return r.vstate.Reveal(c)
}

func (r *Room) RelocateMask(c game.Color, square string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return false
	}
	return r.vstate.Relocate(c, square)
}

func (r *Room) CaptureMask(c game.Color) game.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return game.Outcome{}
	}
	return r.vstate.OnCapture(r.vstate.Mask(c).MarkedSquare, c)
}

func (r *Room) ScoreGoal(c game.Color) game.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return game.Outcome{}
	}
	return r.vstate.ScoreGoal(c)
}

// ViewFor computes the recipient-scoped variant view.
func (r *Room) ViewFor(viewer game.Role) game.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vstate.ViewFor(viewer)
}

// FinalView discloses the complete variant state for the terminal
// broadcast.
func (r *Room) FinalView() game.View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vstate.FullView()
}

// MaskedPosition renders the canonical position with the disguise
// overlay for the given recipient.
func (r *Room) MaskedPosition(viewer game.Role) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return game.MaskedFEN(r.position, r.vstate, viewer)
}

// MarkEnded flips the room terminal exactly once.
func (r *Room) MarkEnded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ended {
		return false
	}
	r.ended = true
	return true
}

func (r *Room) Ended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ended
}

// MarkPersisted reports true on the first call only, so the archive
// write happens at most once per room.
func (r *Room) MarkPersisted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.persisted {
		return false
	}
	r.persisted = true
	return true
}

// SetEnginePending reserves the bot slot for a color; a second move
// attempt while a suggestion is outstanding is rejected.
func (r *Room) SetEnginePending(c game.Color) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enginePending[c] {
		return false
	}
	r.enginePending[c] = true
	return true
}

func (r *Room) ClearEnginePending(c game.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.enginePending, c)
}

// AppendChat adds a message to the partition for the sender's role and
// returns the stored entry. Seated players write the player log,
// spectators the spectator log; the two never mix.
func (r *Room) AppendChat(author, text, audience string, at time.Time) Chat {
	entry := Chat{Author: author, Text: text, At: at, Audience: audience}
	r.mu.Lock()
	defer r.mu.Unlock()
	if audience == "spectator" {
		r.chatSpectator = appendCapped(r.chatSpectator, entry)
	} else {
		r.chatPlayer = appendCapped(r.chatPlayer, entry)
	}
	return entry
}

// ChatHistory returns a copy of the requested partition.
func (r *Room) ChatHistory(audience string) []Chat {
	r.mu.Lock()
	defer r.mu.Unlock()
	src := r.chatPlayer
	if audience == "spectator" {
		src = r.chatSpectator
	}
	out := make([]Chat, len(src))
	copy(out, src)
	return out
}

func appendCapped(log []Chat, entry Chat) []Chat {
	log = append(log, entry)
	if len(log) > chatHistoryCap {
		log = log[len(log)-chatHistoryCap:]
	}
	return log
}

// SpectatorIDs snapshots the current spectator connection ids.
func (r *Room) SpectatorIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.spectators))
	for id := range r.spectators {
		out = append(out, id)
	}
	return out
}

// SeatConnIDs returns the connection ids currently bound to seats.
func (r *Room) SeatConnIDs() map[game.Color]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[game.Color]string, 2)
	for c, seat := range r.seats {
		if seat != nil && seat.Connected {
			out[c] = seat.ConnID
		}
	}
	return out
}

func (r *Room) CreatedAt() time.Time { return r.createdAt }
