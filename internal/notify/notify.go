package notify

import (
	"context"
	"errors"

	"github.com/sis061/pilltime-sub000/internal"
)

// ErrInvalidTarget marks a delivery endpoint as gone or rejected; the caller
// deregisters the target instead of retrying.
var ErrInvalidTarget = errors.New("notify: invalid target")

type Message struct {
	Title   string            `json:"title"`
	Body    string            `json:"body"`
	Tag     string            `json:"tag"`
	Payload map[string]string `json:"payload,omitempty"`
}

// Transport attempts best-effort delivery to one target. The core decides
// what and when to send and keeps the dedup bookkeeping; everything from the
// push protocol down lives behind this interface.
type Transport interface {
	Send(ctx context.Context, target internal.PushTarget, msg Message) error
}
