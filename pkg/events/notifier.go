package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"
)

// Notifier is a thin wrapper around a gochannel pub/sub. Publish
// serializes the payload to JSON and stamps each outgoing message with a
// process-wide sequence number, in the order Publish handles them.
type Notifier struct {
	pubsub         *gochannel.GoChannel
	sequenceNumber uint64
	mutex          sync.Mutex
}

func NewNotifier() *Notifier {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, watermill.NopLogger{})

	return &Notifier{
		pubsub: pubsub,
	}
}

func (n *Notifier) Publish(topic string, payload interface{}) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.Metadata.Set("sequence_number", fmt.Sprintf("%d", n.sequenceNumber))
	n.sequenceNumber++

	return n.pubsub.Publish(topic, msg)
}

// PublishBlind publishes and only logs on failure. Change notifications
// are advisory; a failed publish must never fail the write that caused it.
func (n *Notifier) PublishBlind(topic string, payload interface{}) {
	err := n.Publish(topic, payload)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to publish change event")
	}
}

// Subscribe returns a channel of raw events for the topic. The channel is
// closed when ctx is cancelled or the notifier is closed.
func (n *Notifier) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return n.pubsub.Subscribe(ctx, topic)
}

func (n *Notifier) Close() error {
	return n.pubsub.Close()
}
