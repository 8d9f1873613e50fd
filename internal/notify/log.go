package notify

import (
	"context"

	"github.com/sis061/pilltime-sub000/internal"
)

// LogTransport records sends in the log instead of delivering them. It is the
// default transport in development and in tests.
type LogTransport struct {
	logger internal.Logger
}

func NewLogTransport(logger internal.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Send(ctx context.Context, target internal.PushTarget, msg Message) error {
	t.logger.Infof("notify: [%s] %s: %s (tag=%s)", target.Endpoint, msg.Title, msg.Body, msg.Tag)
	return nil
}

var _ Transport = (*LogTransport)(nil)
