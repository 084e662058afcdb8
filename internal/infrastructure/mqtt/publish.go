package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
)

// maxPayloadSize caps outgoing payloads at 1MB. Anything larger almost
// certainly indicates a bug upstream.
const maxPayloadSize = 1024 * 1024

// Publish sends a JSON-encoded message to the specified topic.
//
// The payload is marshalled to JSON before sending. QoS comes from config.
func (c *Client) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMarshalFailed, err)
	}
	return c.publishBytes(ctx, topic, data, false)
}

// PublishRetained sends a JSON-encoded message with the retained flag set.
//
// The broker stores the most recent retained message per topic and
// delivers it to new subscribers immediately. Used for canonical device
// state so late-joining consumers see the current picture without
// waiting for the next merge.
func (c *Client) PublishRetained(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMarshalFailed, err)
	}
	return c.publishBytes(ctx, topic, data, true)
}

// PublishString sends a raw string message without JSON encoding.
func (c *Client) PublishString(ctx context.Context, topic string, payload string) error {
	return c.publishBytes(ctx, topic, []byte(payload), false)
}

func (c *Client) publishBytes(ctx context.Context, topic string, data []byte, retained bool) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if len(data) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(data), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, byte(c.cfg.QoS), retained, data)

	select {
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	case <-token.Done():
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: topic %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
