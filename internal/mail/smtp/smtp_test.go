package smtp

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/blog-backend/internal/mail"
)

func TestNew_RequiresHostAndFrom(t *testing.T) {
	_, err := New(Config{Port: 587, From: "noreply@example.com"})
	assert.Error(t, err)

	_, err = New(Config{Host: "localhost", Port: 587})
	assert.Error(t, err)

	s, err := New(Config{Host: "localhost", Port: 1025, From: "Blog <noreply@example.com>", Timeout: time.Second})
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestBuildMessage(t *testing.T) {
	m, err := buildMessage("noreply@example.com", mail.Message{
		To:      "reader@example.com",
		Subject: "Your password reset token (valid for 10 min)",
		Body:    "reset here",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	raw := buf.String()

	assert.Contains(t, raw, "reader@example.com")
	assert.Contains(t, raw, "noreply@example.com")
	assert.Contains(t, raw, "Subject: Your password reset token")
	assert.True(t, strings.Contains(raw, "reset here"))
}

func TestBuildMessage_InvalidRecipient(t *testing.T) {
	_, err := buildMessage("noreply@example.com", mail.Message{To: "not an address"})
	assert.Error(t, err)
}

func TestSend_UnreachableRelay(t *testing.T) {
	s, err := New(Config{Host: "127.0.0.1", Port: 1, From: "noreply@example.com", Timeout: time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = s.Send(ctx, mail.Message{To: "reader@example.com", Subject: "s", Body: "b"})
	assert.Error(t, err)
}
