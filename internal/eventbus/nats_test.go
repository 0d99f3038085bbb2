package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/friendsincode/limitgate/internal/command"
	"github.com/friendsincode/limitgate/internal/storage"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

type fakeConn struct {
	msgs     []*nats.Msg
	pubErr   error
	flushErr error
	closed   bool
}

func (f *fakeConn) PublishMsg(m *nats.Msg) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	f.msgs = append(f.msgs, m)
	return nil
}

func (f *fakeConn) FlushWithContext(context.Context) error { return f.flushErr }
func (f *fakeConn) Close()                                 { f.closed = true }

func TestNATSPublisherStore(t *testing.T) {
	conn := &fakeConn{}
	pub := NewNATSPublisher(conn, "fleet", zerolog.Nop())

	cmd := command.NormalizedCommand{
		Type:      command.TypeLimit,
		DeviceID:  "dev-1",
		StartAt:   "2024-06-01T17:00:00+00:00",
		Intervals: []int64{10, 20},
		MaxWh:     json.Number("3.5"),
	}
	if err := pub.Store(context.Background(), cmd, "tok"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if len(conn.msgs) != 1 {
		t.Fatalf("published %d messages", len(conn.msgs))
	}
	msg := conn.msgs[0]
	if msg.Subject != "fleet.commands.dev-1" {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if msg.Header.Get("Authorization") != "tok" {
		t.Fatalf("authorization header = %q", msg.Header.Get("Authorization"))
	}
	var back command.NormalizedCommand
	if err := json.Unmarshal(msg.Data, &back); err != nil || back.DeviceID != "dev-1" || back.MaxWh != "3.5" {
		t.Fatalf("payload = %s (%v)", msg.Data, err)
	}

	if err := pub.Close(); err != nil || !conn.closed {
		t.Fatal("close did not close the connection")
	}
}

func TestNATSPublisherErrors(t *testing.T) {
	for name, conn := range map[string]*fakeConn{
		"publish": {pubErr: errors.New("connection closed")},
		"flush":   {flushErr: errors.New("timeout")},
	} {
		t.Run(name, func(t *testing.T) {
			pub := NewNATSPublisher(conn, "", zerolog.Nop())
			err := pub.Store(context.Background(), command.NormalizedCommand{DeviceID: "d"}, "t")
			if !errors.Is(err, storage.ErrStorageUnavailable) {
				t.Fatalf("error = %v", err)
			}
		})
	}
}

func TestSubjectSanitizesDeviceIDs(t *testing.T) {
	pub := NewNATSPublisher(&fakeConn{}, "", zerolog.Nop())
	tests := map[string]string{
		"dev-1":      "limitgate.commands.dev-1",
		"site.a.b":   "limitgate.commands.site_a_b",
		"*":          "limitgate.commands._",
		"a > b":      "limitgate.commands.a___b",
		"":           "limitgate.commands._",
		"ünïcødé-42": "limitgate.commands.ünïcødé-42",
	}
	for in, want := range tests {
		if got := pub.Subject(in); got != want {
			t.Errorf("Subject(%q) = %q, want %q", in, got, want)
		}
	}
}
