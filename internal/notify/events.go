package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/escrowlabs/escrowd/internal/domain"
)

// wagerEvent mirrors the lifecycle event payload published on the signal
// bus. Only the fields the notifier renders are decoded.
type wagerEvent struct {
	Event      string            `json:"event"`
	WagerID    string            `json:"wager_id"`
	Phase      domain.Phase      `json:"phase"`
	Resolution domain.Resolution `json:"resolution"`
	Detail     map[string]any    `json:"detail"`
}

// Listen subscribes to the wager event channel and forwards each event
// through the notifier until the context is cancelled. Terminal events get
// a descriptive title; malformed payloads are logged and skipped.
func Listen(ctx context.Context, bus domain.SignalBus, channel string, n *Notifier, logger *slog.Logger) error {
	msgCh, err := bus.Subscribe(ctx, channel)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", channel, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-msgCh:
			if !ok {
				return fmt.Errorf("notify: channel %s closed", channel)
			}

			var ev wagerEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				logger.WarnContext(ctx, "malformed wager event",
					slog.String("error", err.Error()),
				)
				continue
			}

			title, message := render(ev)
			if err := n.Notify(ctx, ev.Event, title, message); err != nil {
				logger.WarnContext(ctx, "notification delivery failed",
					slog.String("event", ev.Event),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func render(ev wagerEvent) (title, message string) {
	switch ev.Event {
	case "wager_settled":
		title = "Wager settled"
		message = fmt.Sprintf("Wager %s settled with outcome %s.", ev.WagerID, ev.Resolution)
	case "wager_recovered":
		title = "Wager recovered"
		message = fmt.Sprintf("Wager %s passed its decision window and both stakes were refunded.", ev.WagerID)
	case "wager_cancelled":
		title = "Wager cancelled"
		message = fmt.Sprintf("Wager %s was cancelled before activation.", ev.WagerID)
	case "wager_activated":
		title = "Wager activated"
		message = fmt.Sprintf("Wager %s is fully funded; the decision window is open.", ev.WagerID)
	default:
		title = "Wager update"
		message = fmt.Sprintf("Wager %s: %s (phase %s).", ev.WagerID, ev.Event, ev.Phase)
	}
	return title, message
}
