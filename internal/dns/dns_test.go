package dns

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func newTestResolver(servers []string, fn lookupFunc) *Resolver {
	return &Resolver{
		Servers:       servers,
		LocalTimeout:  100 * time.Millisecond,
		RemoteTimeout: time.Second,
		lookup:        fn,
	}
}

func TestLookup_IPLiteral(t *testing.T) {
	r := newTestResolver(nil, func(context.Context, string, string) ([]string, error) {
		t.Fatalf("lookup called for an IP literal")
		return nil, nil
	})
	for _, in := range []string{"127.0.0.1", "::1"} {
		got, err := r.Lookup(context.Background(), in)
		if err != nil || got != in {
			t.Fatalf("Lookup(%q) = %q, %v", in, got, err)
		}
	}
}

func TestLookup_PrefersIPv4Locally(t *testing.T) {
	r := newTestResolver(nil, func(_ context.Context, host, server string) ([]string, error) {
		if server != "" {
			t.Fatalf("public server %q queried although local lookup worked", server)
		}
		return []string{"2001:db8::1", "192.0.2.10"}, nil
	})
	got, err := r.Lookup(context.Background(), "relay.example")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != "192.0.2.10" {
		t.Fatalf("got %q, want IPv4", got)
	}
}

func TestLookup_FallsBackToPublicServers(t *testing.T) {
	r := newTestResolver([]string{"bad", "good"}, func(_ context.Context, _ string, server string) ([]string, error) {
		switch server {
		case "":
			return nil, errors.New("no system resolver")
		case "good":
			return []string{"198.51.100.7"}, nil
		default:
			return nil, errors.New("refused")
		}
	})
	got, err := r.Lookup(context.Background(), "relay.example")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != "198.51.100.7" {
		t.Fatalf("got %q", got)
	}
}

func TestLookup_AllFail(t *testing.T) {
	r := newTestResolver([]string{"a", "b"}, func(context.Context, string, string) ([]string, error) {
		return nil, nil
	})
	if _, err := r.Lookup(context.Background(), "relay.example"); err == nil {
		t.Fatalf("expected error")
	}

	r.Servers = nil
	if _, err := r.Lookup(context.Background(), "relay.example"); !errors.Is(err, ErrNoAddress) {
		t.Fatalf("err=%v, want ErrNoAddress", err)
	}
}

func TestDialContext(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	go func() {
		c, err := l.Accept()
		if err == nil {
			c.Close()
		}
	}()

	_, port, _ := net.SplitHostPort(l.Addr().String())
	r := newTestResolver(nil, func(context.Context, string, string) ([]string, error) {
		return []string{"127.0.0.1"}, nil
	})
	conn, err := r.DialContext(context.Background(), "tcp", net.JoinHostPort("relay.test", port))
	if err != nil {
		t.Fatalf("DialContext: %v", err)
	}
	conn.Close()
}
