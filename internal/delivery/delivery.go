// Package delivery hands messages (OTP codes) to the user's mail channel, decoupled from
// the request that produced them.
package delivery

import (
	"context"
	"fmt"
)

// Message is one outbound mail.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers a message synchronously.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Enqueuer accepts a message for asynchronous delivery. Enqueue must not block on the
// delivery itself; an error means the message was not accepted.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg Message) error
	Close() error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

// Send calls f(ctx, msg).
func (f SenderFunc) Send(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

const (
	otpSubject  = "Your ORBIT Account OTP Code"
	otpTemplate = "Welcome to ORBIT Account!\n\nYour OTP is: %s"
)

// OTPMessage builds the verification mail carrying code for to.
func OTPMessage(to, code string) Message {
	return Message{
		To:      to,
		Subject: otpSubject,
		Body:    fmt.Sprintf(otpTemplate, code),
	}
}
