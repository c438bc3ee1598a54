package notify

import (
	"context"
	"github.com/aim-pay/accountant/pkg"
	"github.com/aim-pay/accountant/pkg/monitoring"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"time"
)

const DefaultInterval = time.Minute

type Sender interface {
	SendPayout(ctx context.Context, recipient *pkg.User, payout pkg.Payout) error
}

// marked notified only after a successful send, so delivery is at least once
type Worker struct {
	tracker  *Tracker
	sender   Sender
	interval time.Duration
	timeout  time.Duration
	logger   *logrus.Logger
}

func NewWorker(logger *logrus.Logger, tracker *Tracker, sender Sender, interval time.Duration) *Worker {
	if interval <= 0 {
		logger.WithField("interval", interval).Warnf("notify interval must be positive, using %s", DefaultInterval)
		interval = DefaultInterval
	}

	return &Worker{
		tracker:  tracker,
		sender:   sender,
		interval: interval,
		timeout:  time.Second * 30,
		logger:   logger,
	}
}

func (w *Worker) Run(ctx context.Context, wake <-chan *redis.Message) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.flush(ctx)
	for {
		select {
		case <-ticker.C:
			w.flush(ctx)
		case _, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			w.flush(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Worker) flush(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if _, err := w.Flush(ctx); err != nil {
		w.logger.WithError(err).Error("failed to flush payout notifications")
	}
}

func (w *Worker) Flush(ctx context.Context) (int, error) {
	deliveries, err := w.tracker.Pending(ctx)
	if err != nil {
		return 0, err
	}

	var sent int
	for _, d := range deliveries {
		log := w.logger.WithFields(logrus.Fields{
			"payout_id":   d.Payout.ID,
			"external_id": d.Recipient.ExternalID,
		})

		if err = w.sender.SendPayout(ctx, d.Recipient, d.Payout); err != nil {
			monitoring.PayoutsNotified.WithLabelValues("failed").Inc()
			log.WithError(err).Warn("failed to deliver payout notification")
			continue
		}

		if err = w.tracker.MarkNotified(ctx, d.Payout.ID); err != nil {
			log.WithError(err).Error("failed to mark payout notified")
			continue
		}

		monitoring.PayoutsNotified.WithLabelValues("sent").Inc()
		sent++
	}

	return sent, nil
}
