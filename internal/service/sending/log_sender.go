package sending

import (
	"context"

	"github.com/google/uuid"
	"github.com/ignite/delivery-engine/internal/domain"
	"github.com/ignite/delivery-engine/internal/pkg/logger"
)

// LogSender accepts every message and only logs it. Used for local
// development when no provider is configured.
type LogSender struct {
	log *logger.Logger
}

func NewLogSender() *LogSender {
	return &LogSender{log: logger.With("component", "log_sender")}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(_ context.Context, msg *domain.Message) (*Result, error) {
	id := "log-" + uuid.New().String()
	s.log.Info("message accepted",
		"message_id", msg.ID, "recipient", msg.Recipient, "subject", msg.Subject, "provider_message_id", id)
	return &Result{ProviderMessageID: id, Provider: s.Name()}, nil
}
