package smtp

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
)

func TestSend_BuildsMessage(t *testing.T) {
	m := New(Config{Host: "mail.test", Port: "587", Sender: "noreply@subsync.test"})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := m.Send(context.Background(), "billing@acme.test", "Payment due", "Hi Jane,\nyour payment is due.")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if gotAddr != "mail.test:587" {
		t.Errorf("addr = %q, want %q", gotAddr, "mail.test:587")
	}
	if gotFrom != "noreply@subsync.test" {
		t.Errorf("from = %q, want %q", gotFrom, "noreply@subsync.test")
	}
	if len(gotTo) != 1 || gotTo[0] != "billing@acme.test" {
		t.Errorf("to = %v, want [billing@acme.test]", gotTo)
	}

	msg := string(gotMsg)
	if !strings.Contains(msg, "Subject: Payment due\r\n") {
		t.Errorf("message missing subject header: %q", msg)
	}
	if !strings.Contains(msg, "your payment is due.") {
		t.Errorf("message missing body: %q", msg)
	}
}

func TestSend_DefaultSender(t *testing.T) {
	m := New(Config{Host: "mail.test", Port: "25"})

	var gotFrom string
	m.send = func(_ string, _ smtp.Auth, from string, _ []string, _ []byte) error {
		gotFrom = from
		return nil
	}

	if err := m.Send(context.Background(), "x@acme.test", "s", "b"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if gotFrom != "no-reply@localhost" {
		t.Errorf("from = %q, want default sender", gotFrom)
	}
}

func TestSend_TransportErrorWrapped(t *testing.T) {
	m := New(Config{Host: "mail.test", Port: "25"})

	sentinel := errors.New("connection refused")
	m.send = func(_ string, _ smtp.Auth, _ string, _ []string, _ []byte) error {
		return sentinel
	}

	err := m.Send(context.Background(), "x@acme.test", "s", "b")
	if !errors.Is(err, sentinel) {
		t.Errorf("expected wrapped transport error, got %v", err)
	}
}

func TestSend_CanceledContext(t *testing.T) {
	m := New(Config{Host: "mail.test", Port: "25"})

	called := false
	m.send = func(_ string, _ smtp.Auth, _ string, _ []string, _ []byte) error {
		called = true
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Send(ctx, "x@acme.test", "s", "b"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("send should not be attempted after cancellation")
	}
}
