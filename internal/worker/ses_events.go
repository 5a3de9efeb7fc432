package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/delivery-engine/internal/domain"
	"github.com/ignite/delivery-engine/internal/service/messaging"
)

// SNS envelope types.
const (
	SNSNotification             = "Notification"
	SNSSubscriptionConfirmation = "SubscriptionConfirmation"
	SNSUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

// ErrIgnoredEvent is returned for SES events that do not change delivery
// status (send, open, click, delivery delay).
var ErrIgnoredEvent = errors.New("ses event does not affect delivery status")

// SNSMessage is the AWS SNS HTTP(S) delivery envelope.
type SNSMessage struct {
	Type         string    `json:"Type"`
	MessageID    string    `json:"MessageId"`
	TopicArn     string    `json:"TopicArn"`
	Message      string    `json:"Message"`
	SubscribeURL string    `json:"SubscribeURL"`
	Timestamp    time.Time `json:"Timestamp"`
}

// sesNotification covers both identity notifications (notificationType)
// and configuration set event publishing (eventType).
type sesNotification struct {
	NotificationType string `json:"notificationType"`
	EventType        string `json:"eventType"`
	Mail             struct {
		MessageID string    `json:"messageId"`
		Timestamp time.Time `json:"timestamp"`
	} `json:"mail"`
	Bounce *struct {
		BounceType        string    `json:"bounceType"`
		BounceSubType     string    `json:"bounceSubType"`
		Timestamp         time.Time `json:"timestamp"`
		BouncedRecipients []struct {
			EmailAddress   string `json:"emailAddress"`
			Status         string `json:"status"`
			DiagnosticCode string `json:"diagnosticCode"`
		} `json:"bouncedRecipients"`
	} `json:"bounce"`
	Complaint *struct {
		ComplaintFeedbackType string    `json:"complaintFeedbackType"`
		Timestamp             time.Time `json:"timestamp"`
	} `json:"complaint"`
	Delivery *struct {
		Timestamp    time.Time `json:"timestamp"`
		SMTPResponse string    `json:"smtpResponse"`
	} `json:"delivery"`
	Reject *struct {
		Reason string `json:"reason"`
	} `json:"reject"`
}

func (n *sesNotification) kind() string {
	if n.EventType != "" {
		return n.EventType
	}
	return n.NotificationType
}

// ParseSNSMessage decodes an SNS envelope.
func ParseSNSMessage(body []byte) (*SNSMessage, error) {
	var m SNSMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("decode sns envelope: %w", err)
	}
	if m.Type == "" {
		return nil, errors.New("decode sns envelope: missing Type")
	}
	return &m, nil
}

// NormalizeSESEvent converts the SES notification carried by an SNS
// Notification into a provider event. The SNS MessageId becomes the
// provider event id, so SNS redeliveries are recognised as duplicates.
func NormalizeSESEvent(env *SNSMessage) (*messaging.ProviderEvent, error) {
	var n sesNotification
	if err := json.Unmarshal([]byte(env.Message), &n); err != nil {
		return nil, fmt.Errorf("decode ses notification: %w", err)
	}
	if n.Mail.MessageID == "" {
		return nil, errors.New("decode ses notification: missing mail.messageId")
	}

	ev := &messaging.ProviderEvent{
		ProviderEventID:   env.MessageID,
		ProviderMessageID: n.Mail.MessageID,
	}

	switch n.kind() {
	case "Delivery":
		ev.Status = domain.StatusDelivered
		if n.Delivery != nil {
			ev.Timestamp = timestamp(n.Delivery.Timestamp)
		}
	case "Bounce":
		if n.Bounce == nil {
			return nil, errors.New("decode ses notification: bounce body missing")
		}
		ev.Status = domain.StatusSoftBounced
		if n.Bounce.BounceType == "Permanent" {
			ev.Status = domain.StatusBounced
		}
		ev.ErrorCode = n.Bounce.BounceType + "/" + n.Bounce.BounceSubType
		if len(n.Bounce.BouncedRecipients) > 0 {
			ev.ErrorMessage = n.Bounce.BouncedRecipients[0].DiagnosticCode
		}
		ev.Timestamp = timestamp(n.Bounce.Timestamp)
	case "Complaint":
		ev.Status = domain.StatusComplained
		if n.Complaint != nil {
			ev.ErrorCode = n.Complaint.ComplaintFeedbackType
			ev.Timestamp = timestamp(n.Complaint.Timestamp)
		}
	case "Reject":
		ev.Status = domain.StatusFailed
		ev.ErrorCode = "Reject"
		if n.Reject != nil {
			ev.ErrorMessage = n.Reject.Reason
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrIgnoredEvent, n.kind())
	}
	return ev, nil
}

func timestamp(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
