package scheduler

import "github.com/hostfleet/fleetnet/internal/logger"

// Event names, spec.md §6's Notifications table.
const (
	EventRunInstanceStart     = "scheduler.run_instance.start"
	EventRunInstanceScheduled = "scheduler.run_instance.scheduled"
	EventRunInstanceEnd       = "scheduler.run_instance.end"
)

// Notifier receives scheduler lifecycle notifications. A FilterScheduler
// with a nil Notify field falls back to DefaultNotifier.
type Notifier func(event string, payload map[string]any)

// DefaultNotifier logs notifications through the process logger, the
// fallback used when no message-bus Notifier is configured.
func DefaultNotifier(event string, payload map[string]any) {
	fields := logger.Ctx{"event": event}
	for k, v := range payload {
		fields[k] = v
	}

	logger.Info("notification", fields)
}
