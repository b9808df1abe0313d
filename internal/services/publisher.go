package services

import (
	"context"
	"fmt"

	"event-registration/models"

	pubnub "github.com/pubnub/go/v7"
)

// StatusPublisher pushes terminal payer transitions to the front-end.
type StatusPublisher interface {
	Publish(ctx context.Context, update models.StatusUpdate) error
}

// PayerChannel is the pubnub channel a status page subscribes to.
func PayerChannel(payerID string) string {
	return fmt.Sprintf("payer-%s", payerID)
}

type PubNubPublisher struct {
	pn *pubnub.PubNub
}

func NewPubNubPublisher(pn *pubnub.PubNub) *PubNubPublisher {
	return &PubNubPublisher{pn: pn}
}

func (p *PubNubPublisher) Publish(_ context.Context, update models.StatusUpdate) error {
	_, st, err := p.pn.Publish().
		Channel(PayerChannel(update.PayerID)).
		Message(update).
		Execute()
	if err != nil {
		return fmt.Errorf("pubnub publish (status %d): %w", st.StatusCode, err)
	}
	return nil
}

// NopPublisher is used when pubnub is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.StatusUpdate) error { return nil }
