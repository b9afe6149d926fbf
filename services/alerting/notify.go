package alerting

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"agroguard/pkg/render"
	"agroguard/pkg/store"
)

// Notifier delivers a freshly raised alert to its owner.
type Notifier interface {
	Notify(ctx context.Context, a store.Alert) error
}

// LogNotifier renders the alert template and writes it to the log. It is the
// delivery channel until an email or SMS gateway is configured.
type LogNotifier struct {
	logger zerolog.Logger
	engine *render.Engine
}

func NewLogNotifier(logger zerolog.Logger, engine *render.Engine) (*LogNotifier, error) {
	if engine == nil {
		return nil, errors.New("render engine is required")
	}
	return &LogNotifier{logger: logger, engine: engine}, nil
}

func (n *LogNotifier) Notify(_ context.Context, a store.Alert) error {
	text, err := n.engine.Render(render.AlertTemplate, render.AlertDoc{
		EquipmentName:     a.EquipmentName,
		Severity:          string(a.Severity),
		Message:           a.Message,
		RecommendedAction: a.RecommendedAction,
		RaisedAt:          a.CreatedAt,
	})
	if err != nil {
		return err
	}
	n.logger.Info().
		Str("alert_id", a.ID.String()).
		Str("owner_id", a.OwnerID.String()).
		Str("severity", string(a.Severity)).
		Str("notification", text).
		Msg("alert notification")
	return nil
}
