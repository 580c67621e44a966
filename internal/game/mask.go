package game

// MaskState tracks one side's marked piece.
type MaskState struct {
	MarkedSquare string
	Phase        Phase
}

// State is the per-room variant state. Masked variants use the two
// per-color mask states; goal variants use Goal. Purely in-memory, no
// I/O, every transition is a plain method call.
type State struct {
	Variant Variant
	Rule    MaskRule
	White   MaskState
	Black   MaskState
	Goal    GoalStatus
}

// Outcome is what a transition reports back to the caller.
type Outcome struct {
	Terminal bool
	Winner   Color
	Reason   string
	Revealed bool
	Captured bool
}

func NewState(v Variant) *State {
	return &State{Variant: v, Rule: RuleFor(v)}
}

func (s *State) mask(c Color) *MaskState {
	if c == White {
		return &s.White
	}
	return &s.Black
}

// Mask returns a copy of the given side's mask state.
func (s *State) Mask(c Color) MaskState { return *s.mask(c) }

// Assign finalizes the marked square for a color. Only the very first
// assignment takes; later calls are no-ops.
func (s *State) Assign(c Color, square string) bool {
	if !s.Variant.Masked() || !ValidSquare(square) {
		return false
	}
	m := s.mask(c)
	if m.Phase != PhaseUnset {
		return false
	}
	m.MarkedSquare = square
	m.Phase = PhaseAssigned
	return true
}

// Reveal forces the marked piece public. Used for the explicit reveal
// request; move-driven reveals go through OnMove.
func (s *State) Reveal(c Color) bool {
	m := s.mask(c)
	if m.Phase != PhaseAssigned {
		return false
	}
	m.Phase = PhaseRevealed
	return true
}

// Relocate moves the marked square without a phase change. The square
// follows the piece while its identity is still in question.
func (s *State) Relocate(c Color, square string) bool {
	if !ValidSquare(square) {
		return false
	}
	m := s.mask(c)
	if m.Phase != PhaseAssigned && m.Phase != PhaseRevealed {
		return false
	}
	m.MarkedSquare = square
	return true
}

// OnMove applies a validated move to the mask machinery. Reveal is
// processed before any capture consequence, so a move that both reveals
// the mover's piece and captures the opponent's marked square ends with
// the reveal visible and the capture deciding the game.
func (s *State) OnMove(mv MoveDescriptor) Outcome {
	var out Outcome
	if !s.Variant.Masked() {
		return out
	}

	m := s.mask(mv.MovedBy)
	if m.Phase == PhaseAssigned && m.MarkedSquare == mv.From {
		if mv.PawnLike || !s.Rule.RevealOnNonPawnLike {
			m.MarkedSquare = mv.To
		} else {
			m.MarkedSquare = mv.To
			m.Phase = PhaseRevealed
			out.Revealed = true
		}
	} else if m.Phase == PhaseRevealed && m.MarkedSquare == mv.From {
		m.MarkedSquare = mv.To
	}

	if mv.CaptureSquare != "" && mv.CaptureColor.Valid() {
		cap := s.OnCapture(mv.CaptureSquare, mv.CaptureColor)
		cap.Revealed = out.Revealed
		return cap
	}
	return out
}

// OnCapture handles a capture landing on the given square owned by the
// given color. When the square is that color's marked square the phase
// moves to Captured; fatal variants end the game for the capturing side.
func (s *State) OnCapture(square string, owner Color) Outcome {
	var out Outcome
	if !s.Variant.Masked() {
		return out
	}
	m := s.mask(owner)
	if m.Phase == PhaseUnset || m.Phase == PhaseCaptured || m.MarkedSquare != square {
		return out
	}
	m.Phase = PhaseCaptured
	out.Captured = true
	if s.Rule.CaptureFatal {
		out.Terminal = true
		if s.Rule.CapturePoisons {
			out.Winner = owner
			out.Reason = "poisoned piece captured"
		} else {
			out.Winner = owner.Opponent()
			out.Reason = "marked piece captured"
		}
	}
	return out
}

// ScoreGoal decides a goal-family game in favor of the given color.
func (s *State) ScoreGoal(c Color) Outcome {
	if !s.Variant.Goal() || s.Goal.Won {
		return Outcome{}
	}
	s.Goal = GoalStatus{Won: true, Winner: c}
	return Outcome{Terminal: true, Winner: c, Reason: "objective reached"}
}

// View is what a particular recipient may learn about the variant state.
// The owning seat sees its own marked square while Assigned; everyone
// else only learns it once the phase is Revealed or Captured.
type View struct {
	MarkedWhite string
	MarkedBlack string
	PhaseWhite  Phase
	PhaseBlack  Phase
}

func (s *State) ViewFor(viewer Role) View {
	v := View{PhaseWhite: s.White.Phase, PhaseBlack: s.Black.Phase}
	if visibleTo(viewer, RoleWhite, s.White.Phase) {
		v.MarkedWhite = s.White.MarkedSquare
	}
	if visibleTo(viewer, RoleBlack, s.Black.Phase) {
		v.MarkedBlack = s.Black.MarkedSquare
	}
	return v
}

// FullView discloses both marked squares. Only for terminal
// broadcasts, after the game holds no secrets.
func (s *State) FullView() View {
	return View{
		MarkedWhite: s.White.MarkedSquare,
		MarkedBlack: s.Black.MarkedSquare,
		PhaseWhite:  s.White.Phase,
		PhaseBlack:  s.Black.Phase,
	}
}

func visibleTo(viewer, owner Role, p Phase) bool {
	if p == PhaseRevealed || p == PhaseCaptured {
		return true
	}
	return p == PhaseAssigned && viewer == owner
}
