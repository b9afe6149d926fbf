package api

import (
	"context"
)

// publish sends an event, logging the subject when the bus refuses it.
func (a *API) publish(ctx context.Context, subject string, payload any) error {
	if subject == "" {
		return nil
	}
	if err := a.deps.Bus.Publish(ctx, subject, payload); err != nil {
		a.deps.Logger.Warn().Err(err).Str("subject", subject).Msg("publish event")
		return err
	}
	return nil
}
