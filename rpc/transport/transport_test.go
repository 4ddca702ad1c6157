package transport_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/ValentinKolb/dSync/rpc/transport/memory"
	"github.com/ValentinKolb/dSync/rpc/transport/tcp"
	"github.com/ValentinKolb/dSync/rpc/transport/unix"
	"github.com/ValentinKolb/dSync/rpc/transport/ws"
)

// testSetup starts a listener and returns a dialer plus the endpoint to dial
type testSetup func(t testing.TB) (transport.IListener, transport.IDialer, string)

// testTransports is a map of transport name to setup function
var testTransports = map[string]testSetup{
	"memory": func(t testing.TB) (transport.IListener, transport.IDialer, string) {
		network := memory.NewNetwork()
		l, err := network.Listen("server")
		if err != nil {
			t.Fatal(err)
		}
		return l, network, "server"
	},
	"tcp": func(t testing.TB) (transport.IListener, transport.IDialer, string) {
		config := common.TransportConfig{Kind: "tcp", Endpoint: "127.0.0.1:0", TCPConf: common.TCPConf{TCPNoDelay: true}}
		l, err := tcp.NewListener(config)
		if err != nil {
			t.Fatal(err)
		}
		return l, tcp.NewDialer(config, 0), l.Addr()
	},
	"unix": func(t testing.TB) (transport.IListener, transport.IDialer, string) {
		config := common.TransportConfig{Kind: "unix", Endpoint: filepath.Join(t.TempDir(), "dsync.sock")}
		l, err := unix.NewListener(config)
		if err != nil {
			t.Fatal(err)
		}
		return l, unix.NewDialer(config, 0), config.Endpoint
	},
	"ws": func(t testing.TB) (transport.IListener, transport.IDialer, string) {
		config := common.TransportConfig{Kind: "ws", Endpoint: "127.0.0.1:0"}
		l, err := ws.NewListener(config)
		if err != nil {
			t.Fatal(err)
		}
		return l, ws.NewDialer(config), l.Addr()
	},
}

// connect returns both ends of a fresh connection
func connect(t testing.TB, setup testSetup) (transport.IConnection, transport.IConnection) {
	t.Helper()
	l, d, endpoint := setup(t)
	t.Cleanup(func() { _ = l.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	accepted := make(chan transport.IConnection, 1)
	errCh := make(chan error, 1)
	go func() {
		c, err := l.Accept(ctx)
		if err != nil {
			errCh <- err
			return
		}
		accepted <- c
	}()

	client, err := d.Dial(ctx, endpoint)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	select {
	case server := <-accepted:
		t.Cleanup(func() { _ = client.Close(); _ = server.Close() })
		return client, server
	case err := <-errCh:
		t.Fatalf("accept failed: %v", err)
	}
	return nil, nil
}

// TestSendReceive tests that messages arrive complete and in order in both directions
func TestSendReceive(t *testing.T) {
	for name, setup := range testTransports {
		t.Run(name, func(t *testing.T) {
			client, server := connect(t, setup)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			messages := [][]byte{
				[]byte("hello"),
				{},
				bytes.Repeat([]byte{0xab}, 64*1024),
				[]byte("Point{x:10;y:25;}"),
			}

			go func() {
				for _, msg := range messages {
					if err := client.Send(ctx, msg); err != nil {
						t.Errorf("send failed: %v", err)
						return
					}
				}
			}()

			for i, want := range messages {
				got, err := server.Receive(ctx)
				if err != nil {
					t.Fatalf("receive %d failed: %v", i, err)
				}
				if !bytes.Equal(got, want) {
					t.Fatalf("message %d: got %d bytes, want %d bytes", i, len(got), len(want))
				}
			}

			// and back
			if err := server.Send(ctx, []byte("pong")); err != nil {
				t.Fatal(err)
			}
			got, err := client.Receive(ctx)
			if err != nil || string(got) != "pong" {
				t.Fatalf("expected pong, got %q (%v)", got, err)
			}
		})
	}
}

// TestClose tests that closing one end unblocks the other with ErrClosed
func TestClose(t *testing.T) {
	for name, setup := range testTransports {
		t.Run(name, func(t *testing.T) {
			client, server := connect(t, setup)

			errCh := make(chan error, 1)
			go func() {
				_, err := server.Receive(context.Background())
				errCh <- err
			}()

			time.Sleep(20 * time.Millisecond)
			_ = client.Close()

			select {
			case err := <-errCh:
				if !errors.Is(err, transport.ErrClosed) {
					t.Errorf("expected ErrClosed, got %v", err)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("receive did not return after close")
			}

			if err := client.Send(context.Background(), []byte("x")); !errors.Is(err, transport.ErrClosed) {
				t.Errorf("expected ErrClosed on send after close, got %v", err)
			}
		})
	}
}

// TestReceiveCancel tests that a blocked receive honors its context
func TestReceiveCancel(t *testing.T) {
	for name, setup := range testTransports {
		t.Run(name, func(t *testing.T) {
			_, server := connect(t, setup)

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()

			_, err := server.Receive(ctx)
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("expected DeadlineExceeded, got %v", err)
			}
		})
	}
}

// TestAcceptAfterClose tests that a closed listener stops accepting
func TestAcceptAfterClose(t *testing.T) {
	for name, setup := range testTransports {
		t.Run(name, func(t *testing.T) {
			l, _, _ := setup(t)
			_ = l.Close()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if _, err := l.Accept(ctx); err == nil {
				t.Error("expected an error from a closed listener")
			}
		})
	}
}

// TestMemoryDialUnknown tests dialing a name without listener
func TestMemoryDialUnknown(t *testing.T) {
	network := memory.NewNetwork()
	if _, err := network.Dial(context.Background(), "nowhere"); err == nil {
		t.Error("expected dial to fail")
	}
	if _, err := network.Listen("a"); err != nil {
		t.Fatal(err)
	}
	if _, err := network.Listen("a"); err == nil {
		t.Error("expected address in use")
	}
}

// BenchmarkRoundTrip measures one message in each direction
func BenchmarkRoundTrip(b *testing.B) {
	for _, size := range []int{16, 1024, 16 * 1024} {
		for _, name := range []string{"memory", "tcp"} {
			b.Run(fmt.Sprintf("%s_%d", name, size), func(b *testing.B) {
				client, server := connect(b, testTransports[name])
				ctx := context.Background()
				msg := make([]byte, size)

				go func() {
					for {
						data, err := server.Receive(ctx)
						if err != nil {
							return
						}
						if err := server.Send(ctx, data); err != nil {
							return
						}
					}
				}()

				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					if err := client.Send(ctx, msg); err != nil {
						b.Fatal(err)
					}
					if _, err := client.Receive(ctx); err != nil {
						b.Fatal(err)
					}
				}
				b.StopTimer()
				_ = client.Close()
			})
		}
	}
}
