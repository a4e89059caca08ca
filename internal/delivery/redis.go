package delivery

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
)

// Envelope is the JSON document published for the conversational gateway.
type Envelope struct {
	Op           string        `json:"op"`
	Notification *Notification `json:"notification,omitempty"`
	Recipient    int64         `json:"recipient,omitempty"`
	Retract      *ActionRef    `json:"retract,omitempty"`
}

const (
	OpSend    = "send"
	OpRetract = "retract"
)

// RedisNotifier publishes envelopes on a pub/sub channel consumed by the
// gateway that owns the participants' chat sessions.
type RedisNotifier struct {
	client  *goredis.Client
	channel string
}

// NewRedisNotifier wires a notifier on an existing client.
func NewRedisNotifier(client *goredis.Client, channel string) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel}
}

// Send publishes n. A publish nobody receives counts as undelivered.
func (r *RedisNotifier) Send(ctx context.Context, n Notification) error {
	return r.publish(ctx, Envelope{Op: OpSend, Notification: &n})
}

// RetractAction asks the gateway to disable a previously sent action.
func (r *RedisNotifier) RetractAction(ctx context.Context, recipient int64, ref ActionRef) error {
	return r.publish(ctx, Envelope{Op: OpRetract, Recipient: recipient, Retract: &ref})
}

func (r *RedisNotifier) publish(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	receivers, err := r.client.Publish(ctx, r.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	if receivers == 0 {
		return fmt.Errorf("%w: no gateway subscribed to %s", ErrDelivery, r.channel)
	}
	return nil
}
