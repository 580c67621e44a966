package game

import "testing"

func TestMaskedFENDisguisesForOpponentOnly(t *testing.T) {
	st := NewState(VariantHiddenQueen)
	st.Assign(White, "d2")
	// canonical board carries the true queen at d2
	position := ReplacePieceFEN(StartFEN, "d2", 'Q')

	owner := MaskedFEN(position, st, RoleWhite)
	if owner != position {
		t.Fatalf("owner view rewritten:\n got %s\nwant %s", owner, position)
	}

	opp := MaskedFEN(position, st, RoleBlack)
	if piece, _ := PieceAt(opp, "d2"); piece != 'P' {
		t.Fatalf("opponent sees %q at d2, want P", piece)
	}
	// only the marked square changes
	if opp == position {
		t.Fatalf("opponent view identical to canonical")
	}
	if MaskedFEN(position, st, RoleSpectator) != opp {
		t.Fatalf("spectator view differs from opponent view")
	}
}

func TestMaskedFENAfterReveal(t *testing.T) {
	st := NewState(VariantHiddenQueen)
	st.Assign(White, "d2")
	st.Reveal(White)
	position := ReplacePieceFEN(StartFEN, "d2", 'Q')
	if got := MaskedFEN(position, st, RoleBlack); got != position {
		t.Fatalf("revealed piece still disguised:\n%s", got)
	}
}

func TestMaskedFENBlackDisguiseIsLowercase(t *testing.T) {
	st := NewState(VariantHiddenQueen)
	st.Assign(Black, "e7")
	position := ReplacePieceFEN(StartFEN, "e7", 'q')
	view := MaskedFEN(position, st, RoleWhite)
	if piece, _ := PieceAt(view, "e7"); piece != 'p' {
		t.Fatalf("white sees %q at e7, want p", piece)
	}
}

func TestMaskedFENStandardVariantPassthrough(t *testing.T) {
	if got := MaskedFEN(StartFEN, NewState(VariantStandard), RoleBlack); got != StartFEN {
		t.Fatalf("standard variant rewrote the position")
	}
}

func TestReplacePieceFEN(t *testing.T) {
	pos := ReplacePieceFEN(StartFEN, "d2", 'Q')
	if piece, _ := PieceAt(pos, "d2"); piece != 'Q' {
		t.Fatalf("piece at d2 = %q", piece)
	}
	if piece, _ := PieceAt(pos, "e2"); piece != 'P' {
		t.Fatalf("neighbor square touched: %q", piece)
	}
	// empty square and malformed input come back unchanged
	if ReplacePieceFEN(StartFEN, "d4", 'Q') != StartFEN {
		t.Fatalf("empty square rewritten")
	}
	if ReplacePieceFEN("not-a-fen", "d2", 'Q') != "not-a-fen" {
		t.Fatalf("malformed position rewritten")
	}
}

func TestPawnLikeMove(t *testing.T) {
	cases := []struct {
		from, to string
		mover    Color
		capture  bool
		want     bool
	}{
		{"d2", "d3", White, false, true},
		{"d2", "d4", White, false, true},
		{"d3", "d5", White, false, false},
		{"d2", "e3", White, true, true},
		{"d2", "e3", White, false, false},
		{"d2", "f4", White, false, false},
		{"e7", "e5", Black, false, true},
		{"e7", "d6", Black, true, true},
		{"e7", "e8", Black, false, false},
	}
	for _, tc := range cases {
		if got := PawnLikeMove(tc.from, tc.to, tc.mover, tc.capture); got != tc.want {
			t.Errorf("PawnLikeMove(%s,%s,%s,cap=%v) = %v, want %v",
				tc.from, tc.to, tc.mover, tc.capture, got, tc.want)
		}
	}
}

func TestPawnSquare(t *testing.T) {
	if sq, ok := PawnSquare(4, White); !ok || sq != "d2" {
		t.Fatalf("PawnSquare(4, white) = %q %v", sq, ok)
	}
	if sq, ok := PawnSquare(8, Black); !ok || sq != "h7" {
		t.Fatalf("PawnSquare(8, black) = %q %v", sq, ok)
	}
	if _, ok := PawnSquare(0, White); ok {
		t.Fatalf("index 0 accepted")
	}
	if _, ok := PawnSquare(9, White); ok {
		t.Fatalf("index 9 accepted")
	}
}

func TestSideToMove(t *testing.T) {
	if SideToMove(StartFEN) != White {
		t.Fatalf("start position should be white to move")
	}
	if SideToMove("rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR b KQkq - 0 1") != Black {
		t.Fatalf("b field should be black to move")
	}
	if SideToMove("garbage") != White {
		t.Fatalf("malformed position should default to white")
	}
}
