package notification

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogSender logs messages instead of sending them. Every callback is accepted.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sid := "SMsim" + uuid.New().String()
	s.logger.Info("SMS (log only)",
		zap.String("bookingID", msg.BookingID),
		zap.String("kind", string(msg.Kind)),
		zap.String("to", msg.To),
		zap.String("body", msg.Body),
		zap.String("sid", sid))
	return sid, nil
}

func (s *LogSender) ValidSignature(string, map[string]string, string) bool {
	return true
}
