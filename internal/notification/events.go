package notification

import (
	"context"
	"fmt"

	"cryptomomentum-corev1/internal/model"
)

// Bridge subscribes to the core's internal event bus and forwards
// order-lifecycle events to a Notifier, the spec's stated "thin interface"
// boundary for the out-of-scope alert-delivery collaborator (§1): the core
// never depends on Telegram/webhook specifics, only on emitting Event
// values onto the bus.
type Bridge struct {
	notifier Notifier
}

// NewBridge creates a Bridge delivering through notifier.
func NewBridge(notifier Notifier) *Bridge {
	return &Bridge{notifier: notifier}
}

// Run consumes events from ch until it closes or ctx is cancelled,
// forwarding order-lifecycle events as alerts. Best-effort per §3: a
// delivery failure is logged by the underlying notifier and never
// propagates back into the data path.
func (b *Bridge) Run(ctx context.Context, ch <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if alert, ok := toAlert(ev); ok {
				_ = b.notifier.Send(ctx, alert)
			}
		}
	}
}

func toAlert(ev model.Event) (Alert, bool) {
	switch ev.Kind {
	case model.EventOrderOpen:
		if ev.Position == nil {
			return Alert{}, false
		}
		return Alert{
			Level: AlertInfo, Title: fmt.Sprintf("opened %s", ev.Position.Symbol),
			Message: fmt.Sprintf("entry=%s qty=%s stop=%s tp1=%s tp2=%s",
				ev.Position.EntryPrice, ev.Position.SizeQty, ev.Position.StopPrice, ev.Position.TP1Price, ev.Position.TP2Price),
		}, true

	case model.EventOrderClose:
		if ev.Position == nil {
			return Alert{}, false
		}
		level := AlertInfo
		if ev.Position.RealizedPnL.IsNegative() {
			level = AlertWarning
		}
		return Alert{
			Level: level, Title: fmt.Sprintf("closed %s (%s)", ev.Position.Symbol, ev.Reason),
			Message: fmt.Sprintf("realized_pnl=%s", ev.Position.RealizedPnL),
		}, true

	case model.EventOrderPartial:
		if ev.Position == nil {
			return Alert{}, false
		}
		return Alert{
			Level: AlertInfo, Title: fmt.Sprintf("partial close %s (%s)", ev.Position.Symbol, ev.Reason),
			Message: fmt.Sprintf("remaining_qty=%s", ev.Position.SizeQty),
		}, true

	default:
		return Alert{}, false
	}
}
