package util

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dSync/lib/demo"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/invoke"
	"github.com/ValentinKolb/dSync/rpc/serializer"
	"github.com/ValentinKolb/dSync/rpc/session"
)

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(WrapString(text), "\n") {
		if len(line) > Wrap {
			t.Errorf("line longer than %d: %q", Wrap, line)
		}
	}
	if got := WrapString("  a   b "); got != "a b" {
		t.Errorf("got %q", got)
	}
}

func TestParseProps(t *testing.T) {
	props, err := ParseProps("role=viewer, team = red")
	if err != nil {
		t.Fatal(err)
	}
	if props["role"] != "viewer" || props["team"] != "red" || len(props) != 2 {
		t.Errorf("got %v", props)
	}
	if props, err := ParseProps(""); err != nil || len(props) != 0 {
		t.Errorf("empty: got %v, %v", props, err)
	}
	if _, err := ParseProps("novalue"); err == nil {
		t.Error("pair without = accepted")
	}
}

func TestInvalidTransport(t *testing.T) {
	conf := common.TransportConfig{Kind: "carrier-pigeon"}
	if _, err := NewListener(conf); err == nil {
		t.Error("listener for unknown transport created")
	}
	if _, err := NewDialer(conf, 0); err == nil {
		t.Error("dialer for unknown transport created")
	}
}

// TestConnect runs a hub on a unix socket and calls it through Connect
func TestConnect(t *testing.T) {
	tc := common.TransportConfig{Kind: "unix", Endpoint: t.TempDir() + "/dsync.sock"}
	l, err := NewListener(tc)
	if err != nil {
		t.Fatal(err)
	}

	codec, err := DemoCodec()
	if err != nil {
		t.Fatal(err)
	}
	d := invoke.NewDispatcher(codec)
	d.MustRegister((&demo.Calculator{}).Methods()...)

	ser, _ := serializer.New("binary")
	hub := session.NewHub(ser, session.Options{ID: "server", Handler: d})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = hub.Serve(ctx, l) }()
	defer hub.Close()

	conf := &common.ClientConfig{
		Transport:     tc,
		Serializer:    "binary",
		TimeoutSecond: 5,
		RetryCount:    3,
		Properties:    map[string]string{"role": "test"},
	}
	s, err := Connect(ctx, conf, session.Options{ID: "client"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer s.Close()

	if s.Remote().ID != "server" {
		t.Errorf("remote peer %s, want server", s.Remote())
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if peer, ok := hub.Session("client"); ok {
			if peer.Remote().Props["role"] != "test" {
				t.Errorf("props not sent: %v", peer.Remote().Props)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("client never joined the hub")
		}
		time.Sleep(10 * time.Millisecond)
	}

	client := invoke.NewDispatcher(codec)
	client.MustRegister(demo.Signatures()...)
	inv := invoke.NewInvoker(client)
	inv.Attach(s)

	sum, err := invoke.Call[int32](ctx, inv, "add", 40, 2)
	if err != nil || sum != 42 {
		t.Errorf("add: got %d, %v", sum, err)
	}
}
