package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type flakyNotifier struct {
	failures int
	sent     []string
}

func (n *flakyNotifier) Send(_ context.Context, email, subject, _ string) error {
	if n.failures > 0 {
		n.failures--
		return errors.New("smtp unavailable")
	}
	n.sent = append(n.sent, email+"|"+subject)
	return nil
}

type recordingRequeuer struct {
	msgs   []Message
	delays []time.Duration
}

func (r *recordingRequeuer) Requeue(_ context.Context, msg Message, delay time.Duration) error {
	r.msgs = append(r.msgs, msg)
	r.delays = append(r.delays, delay)
	return nil
}

type sliceSource struct {
	msgs   []Message
	cancel context.CancelFunc
}

func (s *sliceSource) Next(ctx context.Context) (Message, bool, error) {
	if len(s.msgs) == 0 {
		s.cancel()
		return Message{}, false, ctx.Err()
	}
	m := s.msgs[0]
	s.msgs = s.msgs[1:]
	return m, true, nil
}

func testMessage() Message {
	return Booked(AppointmentInfo{
		ID:           uuid.New(),
		PatientEmail: "pat@example.com",
		DoctorName:   "Grey",
		Date:         time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Time:         "10:00 AM",
	})
}

func TestDispatcher_DeliverSuccess(t *testing.T) {
	n := &flakyNotifier{}
	rq := &recordingRequeuer{}
	d := NewDispatcher(nil, rq, n, DispatcherConfig{MaxAttempts: 3, RetryBackoff: time.Second}, zap.NewNop())

	d.Deliver(context.Background(), testMessage())

	if len(n.sent) != 1 {
		t.Fatalf("expected 1 sent message, got %d", len(n.sent))
	}
	if len(rq.msgs) != 0 {
		t.Errorf("expected no requeue, got %d", len(rq.msgs))
	}
}

func TestDispatcher_RetryWithBackoff(t *testing.T) {
	n := &flakyNotifier{failures: 10}
	rq := &recordingRequeuer{}
	d := NewDispatcher(nil, rq, n, DispatcherConfig{MaxAttempts: 3, RetryBackoff: time.Second}, zap.NewNop())

	msg := testMessage()
	d.Deliver(context.Background(), msg)
	if len(rq.msgs) != 1 || rq.msgs[0].Attempt != 1 || rq.delays[0] != time.Second {
		t.Fatalf("unexpected first retry: %+v %v", rq.msgs, rq.delays)
	}

	d.Deliver(context.Background(), rq.msgs[0])
	if len(rq.msgs) != 2 || rq.delays[1] != 2*time.Second {
		t.Fatalf("unexpected second retry: %v", rq.delays)
	}

	// third attempt is the last one
	d.Deliver(context.Background(), rq.msgs[1])
	if len(rq.msgs) != 2 {
		t.Errorf("expected message to be dropped after max attempts, got %d requeues", len(rq.msgs))
	}
}

func TestDispatcher_NoRecipientIsDropped(t *testing.T) {
	rq := &recordingRequeuer{}
	d := NewDispatcher(nil, rq, NewLogNotifier(zap.NewNop()), DispatcherConfig{MaxAttempts: 5}, zap.NewNop())

	msg := testMessage()
	msg.Email = ""
	d.Deliver(context.Background(), msg)

	if len(rq.msgs) != 0 {
		t.Errorf("message without recipient must not be retried")
	}
}

func TestDispatcher_RunDrainsSource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &sliceSource{msgs: []Message{testMessage(), testMessage()}, cancel: cancel}
	n := &flakyNotifier{}
	d := NewDispatcher(src, nil, n, DispatcherConfig{MaxAttempts: 1}, zap.NewNop())

	if err := d.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(n.sent) != 2 {
		t.Errorf("expected 2 deliveries, got %d", len(n.sent))
	}
}

func TestMessages(t *testing.T) {
	info := AppointmentInfo{
		ID:           uuid.New(),
		PatientEmail: "pat@example.com",
		DoctorName:   "Grey",
		Date:         time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		Time:         "10:00 AM",
	}

	booked := Booked(info)
	if booked.Subject != "Appointment Confirmation" || !strings.Contains(booked.Body, "Jun 1, 2025 at 10:00 AM") {
		t.Errorf("unexpected booked message: %+v", booked)
	}
	if booked.AppointmentID != info.ID || booked.Email != info.PatientEmail {
		t.Errorf("message not addressed to the appointment's patient")
	}

	suspended := DoctorSuspended(info, "Doctor has been suspended")
	if !strings.Contains(suspended.Body, "Reason: Doctor has been suspended") || !strings.Contains(suspended.Body, "rebooking") {
		t.Errorf("unexpected suspension message: %s", suspended.Body)
	}

	if c := Cancelled(info, ""); strings.Contains(c.Body, "Reason") {
		t.Errorf("cancellation without reason should not mention one: %s", c.Body)
	}
}

func TestSMTPNotifier_Send(t *testing.T) {
	n := NewSMTPNotifier("smtp.example.com", "587", "user", "pass", "clinic@example.com")

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	n.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	if err := n.Send(context.Background(), "pat@example.com", "Hello\r\nBcc: evil@example.com", "body"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAddr != "smtp.example.com:587" || gotFrom != "clinic@example.com" || len(gotTo) != 1 {
		t.Errorf("unexpected envelope: %s %s %v", gotAddr, gotFrom, gotTo)
	}
	if strings.Contains(string(gotMsg), "\r\nBcc:") {
		t.Errorf("header injection not sanitized: %q", gotMsg)
	}

	if err := n.Send(context.Background(), "", "s", "b"); !errors.Is(err, ErrNoRecipient) {
		t.Errorf("expected ErrNoRecipient, got %v", err)
	}
}

func TestBuildMail_SanitizesEveryHeader(t *testing.T) {
	msg := string(buildMail(
		"clinic@example.com\nBcc: a@example.com",
		"pat@example.com\r\nBcc: b@example.com",
		"Hi\rCc: c@example.com",
		"line one\r\nline two",
	))

	head, body, ok := strings.Cut(msg, "\r\n\r\n")
	if !ok {
		t.Fatalf("no header/body separator: %q", msg)
	}
	lines := strings.Split(head, "\r\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 header lines, got %d: %q", len(lines), lines)
	}
	for _, l := range lines {
		if strings.ContainsAny(l, "\r\n") || strings.HasPrefix(l, "Bcc:") || strings.HasPrefix(l, "Cc:") {
			t.Errorf("injected header line %q", l)
		}
	}
	if lines[1] != "To: pat@example.com  Bcc: b@example.com" {
		t.Errorf("unexpected To line %q", lines[1])
	}
	if body != "line one\r\nline two" {
		t.Errorf("body should be untouched, got %q", body)
	}
}
