// Package rules wraps the external rules-validation collaborator. The
// coordinator treats it as a black box answering "is this move legal and
// does it end the game"; everything else stays out of this package.
package rules

import (
	"errors"
	"fmt"
	"strings"

	chesslib "github.com/corentings/chess/v2"

	"github.com/veilchess/veilchess-server/internal/game"
)

var ErrBadPosition = errors.New("unparseable board position")

// Verdict is the validator's answer for one candidate move.
type Verdict struct {
	Legal         bool
	NewFEN        string
	CaptureSquare string // empty when nothing was captured
	CaptureColor  game.Color
	PawnLike      bool
	Terminal      bool
	Draw          bool
	Winner        game.Color
	Reason        string
}

// Validator answers legality and terminal-state questions for a
// candidate move. Lenient mode is used by goal-family variants, where
// moving into or ignoring check is allowed and the client's resulting
// position is accepted when the strict rules cannot express the move.
type Validator interface {
	Validate(positionFEN, from, to, clientFEN string, lenient bool) (Verdict, error)
}

// LibValidator implements Validator on top of corentings/chess/v2.
type LibValidator struct{}

func New() *LibValidator { return &LibValidator{} }

func (v *LibValidator) Validate(positionFEN, from, to, clientFEN string, lenient bool) (Verdict, error) {
	g, err := buildGame(positionFEN)
	if err != nil {
		return Verdict{}, err
	}
	pos := g.Position()
	mover := colorFrom(pos.Turn())

	mv, derr := decodeUCI(pos, from, to)
	if derr != nil {
		if !lenient {
			return Verdict{}, nil
		}
		return lenientVerdict(positionFEN, clientFEN, from, to, mover)
	}

	capSquare, capColor := captureOf(positionFEN, mv, mover)
	g.Move(mv, nil)

	out := Verdict{
		Legal:         true,
		NewFEN:        g.FEN(),
		CaptureSquare: capSquare,
		CaptureColor:  capColor,
		PawnLike:      game.PawnLikeMove(from, to, mover, capSquare != ""),
	}

	switch g.Outcome() {
	case chesslib.WhiteWon:
		out.Terminal = true
		out.Winner = game.White
		out.Reason = methodName(g)
	case chesslib.BlackWon:
		out.Terminal = true
		out.Winner = game.Black
		out.Reason = methodName(g)
	case chesslib.Draw:
		out.Terminal = true
		out.Draw = true
		out.Reason = methodName(g)
	}
	return out, nil
}

// lenientVerdict accepts the client-reported position after a move the
// strict rules reject. The position must still parse, and the capture
// facts are derived from the pre-move board.
func lenientVerdict(positionFEN, clientFEN, from, to string, mover game.Color) (Verdict, error) {
	if strings.TrimSpace(clientFEN) == "" {
		return Verdict{}, nil
	}
	if _, err := buildGame(clientFEN); err != nil {
		return Verdict{}, fmt.Errorf("%w: %s", ErrBadPosition, clientFEN)
	}
	out := Verdict{Legal: true, NewFEN: clientFEN}
	if piece, ok := game.PieceAt(positionFEN, to); ok {
		out.CaptureSquare = to
		out.CaptureColor = game.PieceColor(piece)
	}
	out.PawnLike = game.PawnLikeMove(from, to, mover, out.CaptureSquare != "")
	return out, nil
}

func buildGame(fen string) (*chesslib.Game, error) {
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		return chesslib.NewGame(), nil
	}
	option, err := chesslib.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPosition, err)
	}
	return chesslib.NewGame(option), nil
}

func decodeUCI(pos *chesslib.Position, from, to string) (*chesslib.Move, error) {
	notation := chesslib.UCINotation{}
	uci := strings.ToLower(strings.TrimSpace(from) + strings.TrimSpace(to))
	mv, err := notation.Decode(pos, uci)
	if err == nil {
		return mv, nil
	}
	// pawn promotion arrives as from/to only; queen by default
	return notation.Decode(pos, uci+"q")
}

func captureOf(positionFEN string, mv *chesslib.Move, mover game.Color) (string, game.Color) {
	if !mv.HasTag(chesslib.Capture) && !mv.HasTag(chesslib.EnPassant) {
		return "", ""
	}
	to := mv.S2().String()
	if mv.HasTag(chesslib.EnPassant) {
		// the captured pawn sits behind the destination square
		from := mv.S1().String()
		to = string([]byte{to[0], from[1]})
	}
	if piece, ok := game.PieceAt(positionFEN, to); ok {
		return to, game.PieceColor(piece)
	}
	return to, mover.Opponent()
}

func methodName(g *chesslib.Game) string {
	switch g.Method() {
	case chesslib.Checkmate:
		return "checkmate"
	case chesslib.Stalemate:
		return "stalemate"
	case chesslib.ThreefoldRepetition:
		return "threefold repetition"
	case chesslib.FiftyMoveRule:
		return "fifty move rule"
	case chesslib.InsufficientMaterial:
		return "insufficient material"
	}
	return "game over"
}

func colorFrom(c chesslib.Color) game.Color {
	if c == chesslib.White {
		return game.White
	}
	return game.Black
}
