package delivery

import (
	"context"
	"testing"
)

func TestOTPMessage(t *testing.T) {
	msg := OTPMessage("alice@example.com", "042137")
	if msg.To != "alice@example.com" {
		t.Errorf("To = %q", msg.To)
	}
	if msg.Subject != "Your ORBIT Account OTP Code" {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if msg.Body != "Welcome to ORBIT Account!\n\nYour OTP is: 042137" {
		t.Errorf("Body = %q", msg.Body)
	}
}

func TestSenderFunc(t *testing.T) {
	var got Message
	var s Sender = SenderFunc(func(ctx context.Context, msg Message) error {
		got = msg
		return nil
	})
	if err := s.Send(context.Background(), Message{To: "a@example.com"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.To != "a@example.com" {
		t.Errorf("SenderFunc received %+v", got)
	}
}

func TestLogSender_DoesNotFail(t *testing.T) {
	if err := (LogSender{}).Send(context.Background(), OTPMessage("a@example.com", "123456")); err != nil {
		t.Fatalf("Send: %v", err)
	}
}
