package mqtt

import "errors"

var (
	// ErrConnectionFailed indicates the initial broker connection failed.
	ErrConnectionFailed = errors.New("mqtt connection failed")

	// ErrNotConnected indicates an operation was attempted while disconnected.
	ErrNotConnected = errors.New("mqtt client not connected")

	// ErrPublishFailed indicates a publish operation failed.
	ErrPublishFailed = errors.New("mqtt publish failed")

	// ErrSubscribeFailed indicates a subscribe operation failed.
	ErrSubscribeFailed = errors.New("mqtt subscribe failed")

	// ErrEmptyTopic indicates an empty topic string was supplied.
	ErrEmptyTopic = errors.New("mqtt topic is empty")

	// ErrNilHandler indicates a nil message handler was supplied.
	ErrNilHandler = errors.New("mqtt handler is nil")

	// ErrMarshalFailed indicates JSON encoding of a payload failed.
	ErrMarshalFailed = errors.New("mqtt payload marshal failed")

	// ErrPayloadTooLarge indicates a payload exceeded the size cap.
	ErrPayloadTooLarge = errors.New("mqtt payload too large")

	// ErrInvalidTopic indicates a topic string did not match the Hearth layout.
	ErrInvalidTopic = errors.New("mqtt topic does not match hearth layout")
)
