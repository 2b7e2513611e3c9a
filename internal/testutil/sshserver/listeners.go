package sshserver

import (
	"io"
	"net"
	"sync"
	"testing"
)

// Listener is a raw TCP endpoint that misbehaves as an SSH server.
type Listener struct {
	ln    net.Listener
	wg    sync.WaitGroup
	mu    sync.Mutex
	conns []net.Conn
}

// StartBanner accepts connections, writes banner and hangs up immediately.
// Clients fail during key exchange.
func StartBanner(t testing.TB, banner string) *Listener {
	t.Helper()
	return startListener(t, func(c net.Conn) {
		_, _ = io.WriteString(c, banner)
		c.Close()
	})
}

// StartSilent accepts connections and never answers. Clients hang in the
// handshake until their deadline.
func StartSilent(t testing.TB) *Listener {
	t.Helper()
	return startListener(t, func(c net.Conn) {
		_, _ = io.Copy(io.Discard, c)
	})
}

func startListener(t testing.TB, handle func(net.Conn)) *Listener {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	l := &Listener{ln: ln}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			l.mu.Lock()
			l.conns = append(l.conns, c)
			l.mu.Unlock()
			go handle(c)
		}
	}()

	t.Cleanup(l.Close)
	return l
}

// Host returns the listening IP address.
func (l *Listener) Host() string {
	return l.ln.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the listening port.
func (l *Listener) Port() int {
	return l.ln.Addr().(*net.TCPAddr).Port
}

// Close stops the listener and drops open connections.
func (l *Listener) Close() {
	l.ln.Close()
	l.mu.Lock()
	for _, c := range l.conns {
		c.Close()
	}
	l.mu.Unlock()
	l.wg.Wait()
}

// ClosedPort returns a local port with nothing listening on it.
func ClosedPort(t testing.TB) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}
