// Package outcome decides the winner of a rock/paper/scissors exchange.
package outcome

import "github.com/mcdev12/duel/go/internal/models"

// Verdict is the result of comparing move a against move b.
type Verdict int

const (
	BWins Verdict = -1
	Tie   Verdict = 0
	AWins Verdict = 1
)

func (v Verdict) String() string {
	switch v {
	case AWins:
		return "a_wins"
	case BWins:
		return "b_wins"
	default:
		return "tie"
	}
}

// beats maps each elemental move to the move it defeats.
var beats = map[models.Move]models.Move{
	models.MoveRock:     models.MoveScissors,
	models.MoveScissors: models.MovePaper,
	models.MovePaper:    models.MoveRock,
}

// category groups moves that tie with each other. Forfeit and TimeoutForfeit share one
// category, so any pairing of the two is a tie.
func category(m models.Move) models.Move {
	if m.IsForfeit() {
		return models.MoveForfeit
	}
	return m
}

// Compare returns AWins, BWins or Tie for a against b.
//
// Rules in order: same category ties; a forfeiting side loses; otherwise rock beats
// scissors, scissors beats paper, paper beats rock.
func Compare(a, b models.Move) Verdict {
	if category(a) == category(b) {
		return Tie
	}
	if a.IsForfeit() {
		return BWins
	}
	if b.IsForfeit() {
		return AWins
	}
	if beats[a] == b {
		return AWins
	}
	return BWins
}

// Decide maps Compare(host, opponent) onto a session result.
func Decide(host, opponent models.Move) models.Result {
	switch Compare(host, opponent) {
	case AWins:
		return models.ResultHost
	case BWins:
		return models.ResultOpponent
	default:
		return models.ResultTie
	}
}

var glyphs = map[models.Move]string{
	models.MoveRock:           "✊",
	models.MoveScissors:       "✌️",
	models.MovePaper:          "🖐️",
	models.MoveForfeit:        "🏳️",
	models.MoveTimeoutForfeit: "⏲️",
}

// Glyph returns the emoji shown for a move, or "?" for an unset move.
func Glyph(m models.Move) string {
	if g, ok := glyphs[m]; ok {
		return g
	}
	return "?"
}

// MoveForGlyph decodes a reaction emoji into a submittable move.
func MoveForGlyph(g string) (models.Move, bool) {
	for _, m := range models.Choices {
		if glyphs[m] == g {
			return m, true
		}
	}
	return models.MoveNone, false
}
