// Package bus carries encoded messages between the engine, the gateway and
// market data consumers. On the wire every message is framed as
// "<topic>@<payload>"; the payload bytes are never altered.
package bus

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
)

const Delimiter = '@'

var (
	ErrInvalidTopic = errors.New("invalid topic")
	ErrNoDelimiter  = errors.New("missing topic delimiter")
)

// Topic names, suffixed by the engine id (e.g. "MDF-OME1").
func EntryTopic(engineID string) string      { return "ENTRY-" + engineID }
func MarketDataTopic(engineID string) string { return "MDF-" + engineID }
func BBOTopic(engineID string) string        { return "BBO-" + engineID }

// Envelope is one published message.
type Envelope struct {
	Topic   string
	Payload []byte
}

// Publisher sends a payload on a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

func ValidTopic(topic string) error {
	if topic == "" || strings.IndexByte(topic, Delimiter) >= 0 {
		return fmt.Errorf("%q: %w", topic, ErrInvalidTopic)
	}
	return nil
}

// Frame prefixes payload with its topic and the delimiter.
func Frame(topic string, payload []byte) ([]byte, error) {
	if err := ValidTopic(topic); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(topic)+1+len(payload))
	buf = append(buf, topic...)
	buf = append(buf, Delimiter)
	return append(buf, payload...), nil
}

// Unframe splits a framed message at the first delimiter.
func Unframe(msg []byte) (Envelope, error) {
	i := bytes.IndexByte(msg, Delimiter)
	if i < 0 {
		return Envelope{}, ErrNoDelimiter
	}
	if i == 0 {
		return Envelope{}, fmt.Errorf("empty topic: %w", ErrInvalidTopic)
	}
	return Envelope{Topic: string(msg[:i]), Payload: msg[i+1:]}, nil
}

// Tee publishes to every publisher, collecting their errors.
type Tee []Publisher

func (t Tee) Publish(ctx context.Context, topic string, payload []byte) error {
	var errs []error
	for _, p := range t {
		if err := p.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
