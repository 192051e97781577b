package delivery

import (
	"context"
	"log"
)

// LogSender records that a message would have been sent, without its body. Used when
// no SMTP relay is configured.
type LogSender struct{}

// Send logs the destination and subject only.
func (LogSender) Send(ctx context.Context, msg Message) error {
	log.Printf("delivery: no mail relay configured; dropped %q for %s", msg.Subject, msg.To)
	return nil
}
