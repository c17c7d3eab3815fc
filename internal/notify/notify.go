// Package notify delivers transactional email to merchants and users.
package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Async delivers messages in the background. Delivery failures are logged
// and never reach the caller.
type Async struct {
	next    Notifier
	logger  *zap.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAsync(next Notifier, logger *zap.Logger) *Async {
	return &Async{next: next, logger: logger, timeout: 30 * time.Second}
}

func (a *Async) Dispatch(msg Message) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.next.Send(ctx, msg); err != nil {
			a.logger.Error("email delivery failed",
				zap.String("to", msg.To),
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
			return
		}
		a.logger.Info("email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
	}()
}

// Wait blocks until every dispatched message has been attempted.
func (a *Async) Wait() {
	a.wg.Wait()
}

// LogNotifier stands in for SMTP in development; it only logs the message.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.logger.Info("email (not sent, SMTP not configured)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text),
	)
	return nil
}
