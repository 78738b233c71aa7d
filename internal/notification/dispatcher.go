package notification

import (
	"context"
	"fmt"
	"log"

	"firebase.google.com/go/v4/messaging"

	"github.com/medisphere/labrisk/internal/labanalysis"
	"github.com/medisphere/labrisk/internal/store"
)

// Sender delivers an email.
type Sender interface {
	Send(ctx context.Context, to string, msg Message) error
}

// LogSender writes emails to the log. Used when no mail relay is configured.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to string, msg Message) error {
	log.Printf("[notify] email to %s: %s", to, msg.Subject)
	return nil
}

// messagingClient is the subset of *messaging.Client used here.
type messagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// PushSender sends device notifications through Firebase Cloud Messaging.
type PushSender struct {
	client messagingClient
}

func NewPushSender(client *messaging.Client) *PushSender {
	return &PushSender{client: client}
}

// Push sends one notification to a device token.
func (p *PushSender) Push(ctx context.Context, token, title, body string, data map[string]string) error {
	message := &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
	}
	if _, err := p.client.Send(ctx, message); err != nil {
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}

// Dispatcher sends the email for every analysis and a push for alarming ones.
type Dispatcher struct {
	email    Sender
	push     *PushSender
	minLevel labanalysis.Level
}

// NewDispatcher builds a dispatcher. push may be nil; email defaults to LogSender.
func NewDispatcher(email Sender, push *PushSender, minLevel labanalysis.Level) *Dispatcher {
	if email == nil {
		email = LogSender{}
	}
	return &Dispatcher{email: email, push: push, minLevel: minLevel}
}

// Notify is fire-and-forget: errors are logged but never returned.
func (d *Dispatcher) Notify(ctx context.Context, record *store.AnalysisRecord) {
	if record.DoctorEmail != "" {
		msg, err := Compose(record)
		if err != nil {
			log.Printf("[notify] compose analysis %s: %v", record.ID, err)
		} else if err := d.email.Send(ctx, record.DoctorEmail, msg); err != nil {
			log.Printf("[notify] email for analysis %s: %v", record.ID, err)
		}
	}

	if d.push == nil || record.DoctorPushToken == "" || record.Result.DangerLevel < d.minLevel {
		return
	}
	data := map[string]string{
		"analysis_id":  record.ID,
		"demande_id":   record.DemandeID,
		"danger_level": record.Result.DangerLevel.String(),
	}
	if err := d.push.Push(ctx, record.DoctorPushToken, PushTitle(record), PushBody(record), data); err != nil {
		log.Printf("[notify] push for analysis %s: %v", record.ID, err)
	}
}
