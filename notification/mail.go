package notification

import (
	"encoding/json"
	"fmt"

	"gopkg.in/mail.v2"
)

type MailConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	Recipient string
}

type MailService struct {
	config *MailConfig
}

func NewMailService(config *MailConfig) *MailService {
	return &MailService{config}
}

type Notification struct {
	Subject string
	Payload string
}

func (ms *MailService) ProcessEvent(event *Event) error {
	notification, err := buildNotification(event)
	if err != nil {
		return err
	}

	if notification == nil {
		return nil
	}

	return ms.Send(notification)
}

// buildNotification turns an alert-worthy event into mail content. A nil
// notification means the event does not warrant one.
func buildNotification(event *Event) (*Notification, error) {
	switch event.Type {
	case "session_update":
		var payload sessionUpdatePayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, fmt.Errorf(
				"could not unmarshal session payload: [%v]",
				err,
			)
		}

		if payload.Status != "EXPIRED" {
			return nil, nil
		}

		return &Notification{
			Subject: "Autobot session expired",
			Payload: fmt.Sprintf(
				"Broker session for account %v expired and needs "+
					"a fresh login. The session was valid until %v.",
				event.AccountID,
				payload.ExpiresAt.Format("2006-01-02 15:04:05 MST"),
			),
		}, nil
	case "order_executed":
		var payload orderExecutedPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, fmt.Errorf(
				"could not unmarshal order payload: [%v]",
				err,
			)
		}

		if payload.Status != "FAILED" {
			return nil, nil
		}

		return &Notification{
			Subject: "Autobot order failed",
			Payload: fmt.Sprintf(
				"Order %v (%v %v) for account %v failed: %v",
				payload.OrderID,
				payload.Side,
				payload.Symbol,
				event.AccountID,
				payload.FailureReason,
			),
		}, nil
	case "position_closed":
		var payload positionClosedPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, fmt.Errorf(
				"could not unmarshal trade payload: [%v]",
				err,
			)
		}

		return &Notification{
			Subject: "Autobot position closed",
			Payload: fmt.Sprintf(
				"Position %v %v for account %v closed (%v). "+
					"Profit/loss: %v (%v%%).",
				payload.Side,
				payload.Symbol,
				event.AccountID,
				payload.ExitReason,
				payload.ProfitLoss,
				payload.ProfitLossPercent,
			),
		}, nil
	default:
		return nil, nil
	}
}

func (ms *MailService) Send(notification *Notification) error {
	message := mail.NewMessage()
	message.SetHeader("From", ms.config.Username)
	message.SetHeader("To", ms.config.Recipient)
	message.SetHeader("Subject", notification.Subject)
	message.SetBody("text/plain", notification.Payload)

	dialer := mail.NewDialer(
		ms.config.Host,
		ms.config.Port,
		ms.config.Username,
		ms.config.Password,
	)

	if err := dialer.DialAndSend(message); err != nil {
		return fmt.Errorf("could not send email: [%v]", err)
	}

	return nil
}
