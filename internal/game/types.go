package game

import "strings"

// Color identifies a playing side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) Valid() bool { return c == White || c == Black }

func ParseColor(s string) (Color, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, true
	case "black", "b":
		return Black, true
	}
	return "", false
}

// Role is what a connection is bound to inside a room.
type Role string

const (
	RoleWhite     Role = "white"
	RoleBlack     Role = "black"
	RoleSpectator Role = "spectator"
)

func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white":
		return RoleWhite, true
	case "black":
		return RoleBlack, true
	case "spectator":
		return RoleSpectator, true
	}
	return "", false
}

func (r Role) Color() (Color, bool) {
	switch r {
	case RoleWhite:
		return White, true
	case RoleBlack:
		return Black, true
	}
	return "", false
}

// Variant selects the rule set of a room.
type Variant string

const (
	VariantStandard     Variant = "standard"
	VariantHiddenQueen  Variant = "hidden-queen"
	VariantPoisonedPawn Variant = "poisoned-pawn"
	VariantMorphedKing  Variant = "morphed-king"
	VariantHillRace     Variant = "hill-race"
	VariantRegicide     Variant = "regicide"
)

func ParseVariant(s string) (Variant, bool) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case VariantStandard, VariantHiddenQueen, VariantPoisonedPawn,
		VariantMorphedKing, VariantHillRace, VariantRegicide:
		return v, true
	}
	return "", false
}

// Masked reports whether the variant hides a marked piece.
func (v Variant) Masked() bool {
	switch v {
	case VariantHiddenQueen, VariantPoisonedPawn, VariantMorphedKing:
		return true
	}
	return false
}

// Goal reports whether the variant is decided by an alternate objective
// instead of checkmate.
func (v Variant) Goal() bool {
	return v == VariantHillRace || v == VariantRegicide
}

// Lenient reports whether move validation falls back to the
// client-reported position when the strict rules reject a move. Goal
// variants allow king capture and ignored check; the morphed king
// steps in ways its disguise cannot.
func (v Variant) Lenient() bool {
	return v.Goal() || v == VariantMorphedKing
}

// MaskRule parameterizes the shared masked-piece capability. The same
// machinery serves every masked variant; only these knobs differ.
type MaskRule struct {
	// TruePiece and Disguise are FEN letters for the white side; black
	// uses the lowercase form.
	TruePiece byte
	Disguise  byte
	// RevealOnNonPawnLike reveals the piece when it moves in a way a
	// pawn could not.
	RevealOnNonPawnLike bool
	// CaptureFatal makes capturing the marked piece end the game.
	CaptureFatal bool
	// CapturePoisons inverts the consequence: the capturing side loses.
	CapturePoisons bool
}

// RuleFor returns the mask rule for a masked variant. The zero rule is
// returned for non-masked variants.
func RuleFor(v Variant) MaskRule {
	switch v {
	case VariantHiddenQueen:
		return MaskRule{TruePiece: 'Q', Disguise: 'P', RevealOnNonPawnLike: true, CaptureFatal: true}
	case VariantPoisonedPawn:
		return MaskRule{TruePiece: 'P', Disguise: 'P', CaptureFatal: true, CapturePoisons: true}
	case VariantMorphedKing:
		return MaskRule{TruePiece: 'K', Disguise: 'P', RevealOnNonPawnLike: false, CaptureFatal: true}
	}
	return MaskRule{}
}

// Phase is the lifecycle of a marked piece. It only ever increases.
type Phase int

const (
	PhaseUnset Phase = iota
	PhaseAssigned
	PhaseRevealed
	PhaseCaptured
)

func (p Phase) String() string {
	switch p {
	case PhaseAssigned:
		return "assigned"
	case PhaseRevealed:
		return "revealed"
	case PhaseCaptured:
		return "captured"
	}
	return "unset"
}

// GoalStatus is the state of a goal-family variant.
type GoalStatus struct {
	Won    bool
	Winner Color
}

// MoveDescriptor carries the facts about a validated move that the
// variant machinery needs. Legality is the validator's business.
type MoveDescriptor struct {
	From          string
	To            string
	MovedBy       Color
	CaptureSquare string // empty when the move captures nothing
	CaptureColor  Color
	PawnLike      bool
}

// StartFEN is the initial layout every room begins from.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// PawnSquare maps a 1-8 column index to the initial pawn-rank square
// for the given side (1 -> a2 for white, a7 for black).
func PawnSquare(index int, c Color) (string, bool) {
	if index < 1 || index > 8 {
		return "", false
	}
	file := byte('a' + index - 1)
	rank := byte('2')
	if c == Black {
		rank = '7'
	}
	return string([]byte{file, rank}), true
}

// SideToMove reads the active color out of a FEN string; defaults to
// white when the field is missing or malformed.
func SideToMove(fen string) Color {
	fields := strings.Fields(fen)
	if len(fields) >= 2 && fields[1] == "b" {
		return Black
	}
	return White
}

// ValidSquare reports whether s is algebraic board notation (a1..h8).
func ValidSquare(s string) bool {
	if len(s) != 2 {
		return false
	}
	return s[0] >= 'a' && s[0] <= 'h' && s[1] >= '1' && s[1] <= '8'
}
