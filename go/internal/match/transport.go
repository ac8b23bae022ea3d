package match

import (
	"context"
	"strings"

	"github.com/mcdev12/duel/go/internal/models"
)

// Content is a rendered message: a title, an optional heading line and a body.
type Content struct {
	Title   string `json:"title"`
	Heading string `json:"heading,omitempty"`
	Body    string `json:"body"`
}

func (c Content) String() string {
	parts := []string{c.Title}
	if c.Heading != "" {
		parts = append(parts, c.Heading)
	}
	parts = append(parts, c.Body)
	return strings.Join(parts, "\n")
}

// Transport is the chat boundary the core renders through. Edit, Delete and
// AttachChoices are best-effort: the core logs their failures and carries on.
type Transport interface {
	SendPrivateMessage(ctx context.Context, to models.Participant, content Content) (models.Handle, error)
	SendBroadcastMessage(ctx context.Context, content Content) (models.Handle, error)
	EditMessage(ctx context.Context, handle models.Handle, content Content) error
	DeleteMessage(ctx context.Context, handle models.Handle) error
	AttachChoices(ctx context.Context, handle models.Handle, choices []models.Move) error
}

// ResponseSubmitted is the inbound event a transport emits when a participant picks a
// choice on a rendered prompt.
type ResponseSubmitted struct {
	Handle        models.Handle `json:"handle"`
	ParticipantID string        `json:"participant_id"`
	Choice        models.Move   `json:"choice"`
}
