package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"socialops/domain/dto"
	"socialops/infrastructure/logger"
	"socialops/infrastructure/telemetry"
)

const (
	EventPublished = "publication.published"
	EventFailed    = "publication.failed"
	EventReposted  = "publication.reposted"
)

// Notifier delivers a publication event to one sink.
type Notifier interface {
	Notify(ctx context.Context, evt dto.PublicationEvent) error
}

// NotifySink names a Notifier for logs and metrics.
type NotifySink struct {
	Name     string
	Notifier Notifier
}

// BestEffortNotifier fans events out to its sinks in the background. Sink
// failures are logged and counted, never returned.
type BestEffortNotifier struct {
	sinks   []NotifySink
	timeout time.Duration
	metrics *telemetry.Collector
	wg      sync.WaitGroup
}

func NewBestEffortNotifier(timeout time.Duration, metrics *telemetry.Collector, sinks ...NotifySink) *BestEffortNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	kept := make([]NotifySink, 0, len(sinks))
	for _, s := range sinks {
		if s.Notifier != nil {
			kept = append(kept, s)
		}
	}
	return &BestEffortNotifier{sinks: kept, timeout: timeout, metrics: metrics}
}

// NotifyBestEffort returns immediately. The send outlives ctx's cancellation
// but not the notifier's own timeout.
func (n *BestEffortNotifier) NotifyBestEffort(ctx context.Context, evt dto.PublicationEvent) {
	if n == nil || len(n.sinks) == 0 {
		return
	}
	if evt.EventID == "" {
		evt.EventID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
		defer cancel()
		for _, s := range n.sinks {
			if err := s.Notifier.Notify(sendCtx, evt); err != nil {
				n.metrics.RecordNotifyFailure(s.Name)
				logger.GetLogger().
					WithField("sink", s.Name).
					WithField("event_id", evt.EventID).
					WithField("error", err).
					Warn("Publication event not delivered")
			}
		}
	}()
}

// Wait blocks until every in-flight notification has finished.
func (n *BestEffortNotifier) Wait() {
	if n != nil {
		n.wg.Wait()
	}
}
