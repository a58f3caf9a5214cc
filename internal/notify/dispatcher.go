package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Source yields queued messages; Next blocks until one is available or ctx ends.
// ok is false when the wait timed out without a message.
type Source interface {
	Next(ctx context.Context) (msg Message, ok bool, err error)
}

// Requeuer puts a message back for a later attempt.
type Requeuer interface {
	Requeue(ctx context.Context, msg Message, delay time.Duration) error
}

type DispatcherConfig struct {
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Dispatcher drains a Source into a Notifier. Delivery failures are retried up to
// MaxAttempts with linear backoff and then dropped; they never reach the producer.
type Dispatcher struct {
	source   Source
	requeue  Requeuer
	notifier Notifier
	cfg      DispatcherConfig
	logger   *zap.Logger
}

func NewDispatcher(source Source, requeue Requeuer, notifier Notifier, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Dispatcher{
		source:   source,
		requeue:  requeue,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("notification dispatcher started",
		zap.Int("max_attempts", d.cfg.MaxAttempts),
		zap.Duration("retry_backoff", d.cfg.RetryBackoff),
	)

	for {
		msg, ok, err := d.source.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				d.logger.Info("notification dispatcher stopping")
				return nil
			}
			d.logger.Error("read notification queue", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if !ok {
			continue
		}

		d.Deliver(ctx, msg)
	}
}

// Deliver makes one delivery attempt and schedules a retry on failure.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) {
	msg.Attempt++

	sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := d.notifier.Send(sendCtx, msg.Email, msg.Subject, msg.Body)
	cancel()

	fields := []zap.Field{
		zap.String("message_id", msg.ID.String()),
		zap.String("appointment_id", msg.AppointmentID.String()),
		zap.Int("attempt", msg.Attempt),
	}

	if err == nil {
		d.logger.Info("notification delivered", fields...)
		return
	}

	if errors.Is(err, ErrNoRecipient) || msg.Attempt >= d.cfg.MaxAttempts || d.requeue == nil {
		d.logger.Warn("notification dropped", append(fields, zap.Error(err))...)
		return
	}

	delay := d.cfg.RetryBackoff * time.Duration(msg.Attempt)
	if rqErr := d.requeue.Requeue(ctx, msg, delay); rqErr != nil {
		d.logger.Error("requeue notification", append(fields, zap.Error(rqErr))...)
		return
	}
	d.logger.Warn("notification failed, retry scheduled",
		append(fields, zap.Duration("delay", delay), zap.Error(err))...)
}
