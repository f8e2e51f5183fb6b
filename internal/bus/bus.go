// Package bus provides event bus implementations for Merlin.
package bus

import (
	"fmt"

	"github.com/opensource-finance/merlin/internal/domain"
)

// SubjectPrefix is prepended to every topic on the wire.
const SubjectPrefix = "merlin."

// New creates a new event bus based on configuration.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

func makeSubject(topic string) string {
	return SubjectPrefix + topic
}
