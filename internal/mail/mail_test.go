package mail

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(slog.New(slog.NewTextHandler(&buf, nil)))

	err := s.Send(context.Background(), Message{To: "a@example.com", Subject: "hi", Body: "body"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"to=a@example.com", "subject=hi", "body=body"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}
}

func TestLogSender_CancelledContext(t *testing.T) {
	s := NewLogSender(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Send(ctx, Message{To: "a@example.com"}); err == nil {
		t.Fatal("Send() should fail on a cancelled context")
	}
}

func TestPasswordReset(t *testing.T) {
	msg := PasswordReset("a@example.com", "http://localhost:8080/api/v1/users/resetPassword/abc", 10*time.Minute)

	if msg.To != "a@example.com" {
		t.Errorf("To = %q", msg.To)
	}
	if !strings.Contains(msg.Subject, "10 min") {
		t.Errorf("Subject = %q, want validity in minutes", msg.Subject)
	}
	if !strings.Contains(msg.Body, "/resetPassword/abc") {
		t.Errorf("Body = %q, want reset URL", msg.Body)
	}
}
