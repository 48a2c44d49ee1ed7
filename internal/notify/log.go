package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogNotifier writes messages to the log instead of delivering them. Used in
// dev and when a transport is not configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(_ context.Context, to string, channel Channel, msg Message) (Receipt, error) {
	id := uuid.NewString()
	n.log.Info("notification (log transport)",
		zap.String("message_id", id),
		zap.String("channel", string(channel)),
		zap.String("to", to),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body),
	)
	return Receipt{MessageID: id}, nil
}
