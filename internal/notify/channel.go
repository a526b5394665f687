package notify

import (
	"context"
	"fmt"
	"strings"

	"facewatch/internal/config"
)

// Channel is the external notification transport. Both calls may fail; the
// dispatcher owns rate limiting and failure fallback, the channel only
// delivers.
type Channel interface {
	SendText(ctx context.Context, message string) error
	SendImage(ctx context.Context, message, imagePath string) error
}

// NewChannel builds the configured outbound channel, or nil when
// notifications are disabled.
func NewChannel(cfg config.NotifyConfig) (Channel, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(cfg.Channel) {
	case "telegram":
		return NewTelegram(cfg.Telegram), nil
	case "kafka":
		return NewKafka(cfg.Kafka), nil
	default:
		return nil, fmt.Errorf("unsupported notify channel %q", cfg.Channel)
	}
}
