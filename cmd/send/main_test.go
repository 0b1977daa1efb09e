package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/dht_transport/cmd/internal/chatcli"
	"github.com/danmuck/dht_transport/src/dhtapi"
	"github.com/danmuck/dht_transport/src/kvstore"
	"github.com/danmuck/dht_transport/src/transport"
)

func TestRunSendsOneMessagePerLine(t *testing.T) {
	store := kvstore.NewMemory()
	srv := httptest.NewServer(dhtapi.NewHandler(store))
	defer srv.Close()

	tr, err := transport.NewDHTTransport(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	fixed := time.Date(2024, 3, 9, 1, 25, 0, 0, time.UTC)
	s := &sender{tr: tr, channel: "1", user: "nnv-nick", now: func() time.Time { return fixed }}

	var out bytes.Buffer
	in := chatcli.Reader(strings.NewReader("Hello everyone!\nWhere are you now?\n"))
	if err := run(context.Background(), in, &out, s); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := strings.Count(out.String(), "Text sent"); got != 2 {
		t.Fatalf("output %q, want two confirmations", out.String())
	}
	if s.next != 2 {
		t.Fatalf("next id = %d, want 2", s.next)
	}

	got, err := tr.ReceiveMessages(context.Background(), "1", 1)
	if err != nil {
		t.Fatalf("ReceiveMessages failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("ReceiveMessages(1) = %+v", got)
	}
	m := got[0]
	if m.ID() != 1 || m.Parent() != 1 || m.User() != "nnv-nick" || m.Text() != "Where are you now?" || m.Time() != "2024-03-09 01:25" {
		t.Fatalf("stored message = %+v", m)
	}
}

func TestRunKeepsIDAfterFailedSend(t *testing.T) {
	srv := httptest.NewServer(dhtapi.NewHandler(kvstore.NewMemory()))
	tr, err := transport.NewDHTTransport(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	srv.Close()

	s := &sender{tr: tr, channel: "1", user: "u", now: time.Now}
	var out bytes.Buffer
	if err := run(context.Background(), chatcli.Reader(strings.NewReader("lost\n")), &out, s); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if s.next != 0 || out.Len() != 0 {
		t.Fatalf("failed send advanced state: next=%d out=%q", s.next, out.String())
	}
}
