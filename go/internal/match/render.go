package match

import (
	"fmt"

	"github.com/mcdev12/duel/go/internal/match/outcome"
	"github.com/mcdev12/duel/go/internal/models"
)

const title = "Rock Paper Scissors! ✊✌️🖐️"

func startHeading(host, opponent models.Participant) string {
	return fmt.Sprintf("Let a Rock-Paper-Scissors game start between %s and %s!", host.Name, opponent.Name)
}

func waitingLine(p models.Participant) string {
	return fmt.Sprintf("Waiting for response from %s...", p.Mention())
}

// renderChallenge is the broadcast posted when a session starts.
func renderChallenge(s *Session) Content {
	return Content{
		Title:   title,
		Heading: startHeading(s.Host, s.Opponent),
		Body:    waitingLine(s.Host) + "\n" + waitingLine(s.Opponent),
	}
}

// renderPrompt is side's private countdown view.
func renderPrompt(s *Session, side models.Side) Content {
	other := s.Participant(side.Other())
	return Content{
		Title: title,
		Body: fmt.Sprintf("What will you play against %s?   **%d**\n(Don't give your response before the Bot gives you all of the options)",
			other.Name, s.Remaining(side)),
	}
}

// renderProgress is the broadcast after exactly one side resolved.
func renderProgress(s *Session) Content {
	c := Content{Title: title, Heading: startHeading(s.Host, s.Opponent)}
	for _, side := range models.Sides {
		if !s.Response(side).IsSet() {
			c.Body = waitingLine(s.Participant(side))
			return c
		}
	}
	c.Body = "\nThe results are:"
	return c
}

// renderResult is the final broadcast.
func renderResult(o Outcome) Content {
	host := fmt.Sprintf("%s(%s)", o.Host.Mention(), outcome.Glyph(o.HostMove))
	opponent := fmt.Sprintf("%s(%s)", o.Opponent.Mention(), outcome.Glyph(o.OpponentMove))

	body := "\nThe results are:"
	switch o.Result {
	case models.ResultHost:
		body += fmt.Sprintf("\n\n%s won %s!\n\nWinner: %s\nLoser: %s", host, opponent, o.Host.Mention(), o.Opponent.Mention())
	case models.ResultOpponent:
		body += fmt.Sprintf("\n\n%s won %s!\n\nWinner: %s\nLoser: %s", opponent, host, o.Opponent.Mention(), o.Host.Mention())
	default:
		body += fmt.Sprintf("\n\n%s and %s tied!\n\nIt's a tie!", host, opponent)
	}

	return Content{
		Title:   title,
		Heading: startHeading(o.Host, o.Opponent),
		Body:    body,
	}
}

func challengeRejected(err error, heading, detail string) *ChallengeError {
	return &ChallengeError{Err: err, Heading: heading, Detail: detail}
}

// RenderRejection formats a validation failure the way the transport shows it.
func RenderRejection(ce *ChallengeError) Content {
	return Content{Title: title, Heading: ce.Heading, Body: ce.Detail}
}
