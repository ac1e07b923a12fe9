// Package notifier
package notifier

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Notifier interface for sending notifications (e.g., WeCom, Telegram).
type Notifier interface {
	Send(msg string) error
	SendWithRetry(msg string) error
}

// Multi fans a message out to several sinks. A sink failure is logged and
// does not stop delivery to the remaining sinks; Send reports the last error.
type Multi struct {
	sinks []Notifier
	log   *logrus.Logger
}

func NewMulti(log *logrus.Logger, sinks ...Notifier) *Multi {
	return &Multi{sinks: sinks, log: log}
}

func (m *Multi) Send(msg string) error {
	var last error
	for _, s := range m.sinks {
		if err := s.Send(msg); err != nil {
			m.log.Warnf("Notifier | send failed: %v", err)
			last = err
		}
	}
	return last
}

func (m *Multi) SendWithRetry(msg string) error {
	var last error
	for _, s := range m.sinks {
		if err := s.SendWithRetry(msg); err != nil {
			m.log.Warnf("Notifier | send failed after retries: %v", err)
			last = err
		}
	}
	return last
}

// retrySend drives the per-sink retry loop shared by the concrete notifiers.
func retrySend(send func(string) error, msg string, attempts int, delay time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = send(msg); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}
