package game

import "testing"

func TestAssignOnlyOnce(t *testing.T) {
	st := NewState(VariantHiddenQueen)
	if !st.Assign(White, "d2") {
		t.Fatalf("first assign rejected")
	}
	if st.Assign(White, "e2") {
		t.Fatalf("second assign accepted")
	}
	if got := st.Mask(White); got.MarkedSquare != "d2" || got.Phase != PhaseAssigned {
		t.Fatalf("mask = %+v", got)
	}
}

func TestAssignRejectsNonMaskedVariant(t *testing.T) {
	st := NewState(VariantStandard)
	if st.Assign(White, "d2") {
		t.Fatalf("assign accepted on standard variant")
	}
	if st.Assign(Black, "zz") {
		t.Fatalf("assign accepted with bad square")
	}
}

func TestPhaseNeverDecreases(t *testing.T) {
	st := NewState(VariantHiddenQueen)
	st.Assign(Black, "e7")
	if !st.Reveal(Black) {
		t.Fatalf("reveal rejected")
	}
	if st.Reveal(Black) {
		t.Fatalf("second reveal accepted")
	}
	out := st.OnCapture("e7", Black)
	if !out.Captured || st.Mask(Black).Phase != PhaseCaptured {
		t.Fatalf("capture after reveal: out=%+v phase=%v", out, st.Mask(Black).Phase)
	}
	// terminal phases stay put
	if st.Assign(Black, "a7") || st.Reveal(Black) || st.Relocate(Black, "a7") {
		t.Fatalf("transition accepted out of Captured")
	}
	if st.Mask(Black).Phase != PhaseCaptured {
		t.Fatalf("phase moved backward: %v", st.Mask(Black).Phase)
	}
}

func TestPawnLikeMoveKeepsAssigned(t *testing.T) {
	st := NewState(VariantHiddenQueen)
	st.Assign(White, "d2")

	out := st.OnMove(MoveDescriptor{From: "d2", To: "d3", MovedBy: White, PawnLike: true})
	if out.Revealed || out.Terminal {
		t.Fatalf("pawn-like move revealed: %+v", out)
	}
	m := st.Mask(White)
	if m.Phase != PhaseAssigned || m.MarkedSquare != "d3" {
		t.Fatalf("mask after pawn-like move = %+v", m)
	}
}

func TestNonPawnLikeMoveReveals(t *testing.T) {
	st := NewState(VariantHiddenQueen)
	st.Assign(White, "d2")

	out := st.OnMove(MoveDescriptor{From: "d2", To: "f4", MovedBy: White, PawnLike: false})
	if !out.Revealed {
		t.Fatalf("diagonal slide did not reveal: %+v", out)
	}
	m := st.Mask(White)
	if m.Phase != PhaseRevealed || m.MarkedSquare != "f4" {
		t.Fatalf("mask after reveal = %+v", m)
	}
}

func TestMorphedKingRelocatesWithoutReveal(t *testing.T) {
	st := NewState(VariantMorphedKing)
	st.Assign(Black, "e7")

	out := st.OnMove(MoveDescriptor{From: "e7", To: "d6", MovedBy: Black, PawnLike: false})
	if out.Revealed {
		t.Fatalf("morphed king revealed itself: %+v", out)
	}
	m := st.Mask(Black)
	if m.Phase != PhaseAssigned || m.MarkedSquare != "d6" {
		t.Fatalf("mask after king step = %+v", m)
	}
}

func TestCaptureOfMarkedSquareIsFatal(t *testing.T) {
	st := NewState(VariantHiddenQueen)
	st.Assign(White, "d2")

	out := st.OnMove(MoveDescriptor{
		From: "c4", To: "d2", MovedBy: Black,
		CaptureSquare: "d2", CaptureColor: White,
	})
	if !out.Captured || !out.Terminal {
		t.Fatalf("capture not terminal: %+v", out)
	}
	if out.Winner != Black {
		t.Fatalf("winner = %s, want black", out.Winner)
	}
	if st.Mask(White).Phase != PhaseCaptured {
		t.Fatalf("phase = %v", st.Mask(White).Phase)
	}
}

func TestPoisonedPawnCaptureLosesForCapturer(t *testing.T) {
	st := NewState(VariantPoisonedPawn)
	st.Assign(Black, "c7")

	out := st.OnCapture("c7", Black)
	if !out.Terminal || out.Winner != Black {
		t.Fatalf("poisoned capture outcome = %+v, want black wins", out)
	}
}

func TestCaptureOfUnmarkedSquareIsHarmless(t *testing.T) {
	st := NewState(VariantHiddenQueen)
	st.Assign(White, "d2")
	out := st.OnCapture("e2", White)
	if out.Captured || out.Terminal {
		t.Fatalf("unmarked capture had consequences: %+v", out)
	}
}

func TestScoreGoalOnlyOnce(t *testing.T) {
	st := NewState(VariantHillRace)
	out := st.OnMove(MoveDescriptor{From: "e1", To: "e4", MovedBy: White})
	if out.Terminal {
		t.Fatalf("move alone ended a goal variant")
	}
	first := st.ScoreGoal(White)
	if !first.Terminal || first.Winner != White {
		t.Fatalf("score = %+v", first)
	}
	if again := st.ScoreGoal(Black); again.Terminal {
		t.Fatalf("goal scored twice")
	}
}

func TestViewForHidesAssignedSquareFromOpponent(t *testing.T) {
	st := NewState(VariantHiddenQueen)
	st.Assign(White, "d2")
	st.Assign(Black, "e7")

	white := st.ViewFor(RoleWhite)
	if white.MarkedWhite != "d2" || white.MarkedBlack != "" {
		t.Fatalf("white view = %+v", white)
	}
	spec := st.ViewFor(RoleSpectator)
	if spec.MarkedWhite != "" || spec.MarkedBlack != "" {
		t.Fatalf("spectator view = %+v", spec)
	}

	st.Reveal(Black)
	spec = st.ViewFor(RoleSpectator)
	if spec.MarkedBlack != "e7" {
		t.Fatalf("revealed square hidden from spectator: %+v", spec)
	}
	if got := st.ViewFor(RoleWhite); got.MarkedBlack != "e7" {
		t.Fatalf("revealed square hidden from opponent: %+v", got)
	}
}
