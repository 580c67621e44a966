package game

import "strings"

// MaskedFEN renders the canonical position for one recipient. The
// disguise is an overlay applied at serialization time; the canonical
// FEN string is never rewritten in place.
func MaskedFEN(position string, st *State, viewer Role) string {
	if st == nil || !st.Variant.Masked() {
		return position
	}

	board, tail, ok := splitFEN(position)
	if !ok {
		return position
	}

	changed := false
	apply := func(owner Color, ownerRole Role, m MaskState) {
		if m.Phase != PhaseAssigned || visibleTo(viewer, ownerRole, m.Phase) {
			return
		}
		f, r, ok := squareIndex(m.MarkedSquare)
		if !ok {
			return
		}
		disguise := st.Rule.Disguise
		if owner == Black {
			disguise = lower(disguise)
		}
		if board[r][f] != 0 && board[r][f] != disguise {
			board[r][f] = disguise
			changed = true
		}
	}
	apply(White, RoleWhite, st.White)
	apply(Black, RoleBlack, st.Black)

	if !changed {
		return position
	}
	return joinFEN(board, tail)
}

// splitFEN parses the placement field into an 8x8 grid indexed
// [rank][file] with rank 0 = rank 1. Empty squares are zero bytes.
func splitFEN(fen string) ([8][8]byte, string, bool) {
	var board [8][8]byte
	fields := strings.SplitN(fen, " ", 2)
	tail := ""
	if len(fields) == 2 {
		tail = fields[1]
	}
	ranks := strings.Split(fields[0], "/")
	if len(ranks) != 8 {
		return board, "", false
	}
	for i, rank := range ranks {
		r := 7 - i
		f := 0
		for j := 0; j < len(rank); j++ {
			c := rank[j]
			if c >= '1' && c <= '8' {
				f += int(c - '0')
				continue
			}
			if f > 7 {
				return board, "", false
			}
			board[r][f] = c
			f++
		}
		if f != 8 {
			return board, "", false
		}
	}
	return board, tail, true
}

func joinFEN(board [8][8]byte, tail string) string {
	var b strings.Builder
	for i := 0; i < 8; i++ {
		r := 7 - i
		empty := 0
		for f := 0; f < 8; f++ {
			c := board[r][f]
			if c == 0 {
				empty++
				continue
			}
			if empty > 0 {
				b.WriteByte(byte('0' + empty))
				empty = 0
			}
			b.WriteByte(c)
		}
		if empty > 0 {
			b.WriteByte(byte('0' + empty))
		}
		if i != 7 {
			b.WriteByte('/')
		}
	}
	if tail != "" {
		b.WriteByte(' ')
		b.WriteString(tail)
	}
	return b.String()
}

// ReplacePieceFEN returns the position with the piece at sq swapped for
// the given FEN letter. The original string comes back untouched when
// the square is empty or the position is malformed.
func ReplacePieceFEN(position, sq string, piece byte) string {
	board, tail, ok := splitFEN(position)
	if !ok {
		return position
	}
	f, r, ok := squareIndex(sq)
	if !ok || board[r][f] == 0 {
		return position
	}
	board[r][f] = piece
	return joinFEN(board, tail)
}

// PieceAt returns the FEN letter occupying a square, or false when the
// square is empty or the position is malformed.
func PieceAt(position, sq string) (byte, bool) {
	board, _, ok := splitFEN(position)
	if !ok {
		return 0, false
	}
	f, r, ok := squareIndex(sq)
	if !ok || board[r][f] == 0 {
		return 0, false
	}
	return board[r][f], true
}

// PieceColor maps a FEN letter to its side.
func PieceColor(piece byte) Color {
	if piece >= 'a' && piece <= 'z' {
		return Black
	}
	return White
}

func squareIndex(sq string) (file, rank int, ok bool) {
	if !ValidSquare(sq) {
		return 0, 0, false
	}
	return int(sq[0] - 'a'), int(sq[1] - '1'), true
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + 'a' - 'A'
	}
	return c
}

// PawnLikeMove reports whether the from/to pair is a move a pawn of the
// given color could have made: one step straight (two from the start
// rank) without capturing, or one step diagonally forward capturing.
func PawnLikeMove(from, to string, mover Color, capture bool) bool {
	ff, fr, ok1 := squareIndex(from)
	tf, tr, ok2 := squareIndex(to)
	if !ok1 || !ok2 {
		return false
	}
	dir := 1
	start := 1 // rank 2
	if mover == Black {
		dir = -1
		start = 6
	}
	df := tf - ff
	dr := tr - fr
	if capture {
		return (df == 1 || df == -1) && dr == dir
	}
	if df != 0 {
		return false
	}
	if dr == dir {
		return true
	}
	return dr == 2*dir && fr == start
}
