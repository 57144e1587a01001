package reconciler

import (
	"context"
	"fmt"

	"github.com/cuemby/conduit/pkg/events"
	"github.com/cuemby/conduit/pkg/metrics"
	"github.com/cuemby/conduit/pkg/types"
)

// Apply creates or replaces one entity on the control plane, then fires a
// post-write refresh. The local snapshot only changes through that refresh.
func (r *Reconciler) Apply(ctx context.Context, kind types.Kind, id string, payload []byte) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown kind: %s", kind)
	}
	if id == "" {
		return fmt.Errorf("apply %s: empty id", kind.Singular())
	}

	if err := r.api.Put(ctx, kind, id, payload); err != nil {
		metrics.WritesTotal.WithLabelValues(string(kind), "put", "error").Inc()
		return fmt.Errorf("failed to apply %s %s: %w", kind.Singular(), id, err)
	}
	metrics.WritesTotal.WithLabelValues(string(kind), "put", "ok").Inc()

	r.logger.Info().Str("kind", string(kind)).Str("id", id).Msg("Entity written")
	ev := events.NewEvent(events.EventEntityWritten, kind, kind.Singular()+" "+id+" written")
	ev.Metadata = map[string]string{"id": id}
	r.publish(ev)

	r.Trigger(TriggerWrite)
	return nil
}

// Remove deletes one entity on the control plane, then fires a post-write
// refresh
func (r *Reconciler) Remove(ctx context.Context, kind types.Kind, id string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown kind: %s", kind)
	}
	if id == "" {
		return fmt.Errorf("remove %s: empty id", kind.Singular())
	}

	if err := r.api.Delete(ctx, kind, id); err != nil {
		metrics.WritesTotal.WithLabelValues(string(kind), "delete", "error").Inc()
		return fmt.Errorf("failed to remove %s %s: %w", kind.Singular(), id, err)
	}
	metrics.WritesTotal.WithLabelValues(string(kind), "delete", "ok").Inc()

	r.logger.Info().Str("kind", string(kind)).Str("id", id).Msg("Entity deleted")
	ev := events.NewEvent(events.EventEntityDeleted, kind, kind.Singular()+" "+id+" deleted")
	ev.Metadata = map[string]string{"id": id}
	r.publish(ev)

	r.Trigger(TriggerWrite)
	return nil
}
