// Package sshserver runs an in-process SSH server with scripted command
// responses for tests.
package sshserver

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
)

// Response is the scripted reply to one exec request.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int

	// Delay holds the reply back. The command is abandoned if the client
	// closes the channel first.
	Delay time.Duration

	// NoExitStatus closes the channel without sending exit-status.
	NoExitStatus bool
}

// Server is a password-only SSH server listening on 127.0.0.1.
type Server struct {
	User     string
	Password string

	listener net.Listener
	config   *ssh.ServerConfig

	mu        sync.Mutex
	responses map[string]Response
	executed  []string
	conns     int

	wg sync.WaitGroup
}

// Start launches a server accepting user/password and stops it when the
// test ends.
func Start(t testing.TB, user, password string) *Server {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}

	s := &Server{
		User:      user,
		Password:  password,
		responses: make(map[string]Response),
	}

	s.config = &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if meta.User() == s.User && string(pass) == s.Password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %q", meta.User())
		},
	}
	s.config.AddHostKey(signer)

	s.listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	s.wg.Add(1)
	go s.serve()

	t.Cleanup(s.Close)
	return s
}

// Handle scripts the reply for an exact command line.
func (s *Server) Handle(cmd string, r Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[cmd] = r
}

// Executed returns the command lines received so far, in order.
func (s *Server) Executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.executed...)
}

// Connections returns how many TCP connections were accepted.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// Host returns the listening IP address.
func (s *Server) Host() string {
	return s.listener.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the listening port.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host(), strconv.Itoa(s.Port()))
}

// Close stops accepting connections and waits for the accept loop.
func (s *Server) Close() {
	s.listener.Close()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns++
		s.mu.Unlock()
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(nConn net.Conn) {
	defer nConn.Close()

	conn, chans, reqs, err := ssh.NewServerConn(nConn, s.config)
	if err != nil {
		return
	}
	defer conn.Close()
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests)
	}
}

func (s *Server) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	defer ch.Close()

	closed := make(chan struct{})
	for req := range requests {
		switch req.Type {
		case "exec":
			cmd, ok := parseString(req.Payload)
			_ = req.Reply(ok, nil)
			if !ok {
				return
			}
			go func() {
				// Drain remaining requests (signals) until the client closes.
				for r := range requests {
					if r.WantReply {
						_ = r.Reply(false, nil)
					}
				}
				close(closed)
			}()
			s.exec(ch, cmd, closed)
			return
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func (s *Server) exec(ch ssh.Channel, cmd string, closed <-chan struct{}) {
	s.mu.Lock()
	s.executed = append(s.executed, cmd)
	resp, ok := s.responses[cmd]
	s.mu.Unlock()

	if !ok {
		resp = Response{
			Stderr:   fmt.Sprintf("sh: %s: not found\n", cmd),
			ExitCode: 127,
		}
	}

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-closed:
			return
		}
	}

	_, _ = io.WriteString(ch, resp.Stdout)
	_, _ = io.WriteString(ch.Stderr(), resp.Stderr)

	if resp.NoExitStatus {
		return
	}
	status := make([]byte, 4)
	binary.BigEndian.PutUint32(status, uint32(resp.ExitCode))
	_, _ = ch.SendRequest("exit-status", false, status)
}

func parseString(payload []byte) (string, bool) {
	if len(payload) < 4 {
		return "", false
	}
	n := binary.BigEndian.Uint32(payload)
	if uint32(len(payload)-4) < n {
		return "", false
	}
	return string(payload[4 : 4+n]), true
}
