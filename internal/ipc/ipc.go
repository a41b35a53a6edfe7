// Package ipc is the local control socket: one JSON request and one JSON
// reply per connection.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"time"
)

const (
	DefaultSocketPath = "/tmp/homevox.sock"
	ioTimeout         = 5 * time.Second
)

type ControlMessage struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text,omitempty"`
}

type Reply struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Status any    `json:"status,omitempty"`
}

// Handler answers one control message.
type Handler func(ControlMessage) (status any, err error)

type Server struct {
	path    string
	ln      net.Listener
	handler Handler
}

// Listen removes a stale socket at path and starts listening.
func Listen(path string, handler Handler) (*Server, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	return &Server{path: path, ln: ln, handler: handler}, nil
}

func (s *Server) Path() string { return s.path }

// Serve accepts connections until ctx is done or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()
	defer os.Remove(s.path)

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	return s.ln.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		log.Warn("Bad control message", "err", err)
		_ = json.NewEncoder(conn).Encode(Reply{Error: fmt.Sprintf("bad request: %v", err)})
		return
	}

	log.Info("Control command", "cmd", msg.Cmd)

	status, err := s.handler(msg)
	reply := Reply{OK: err == nil, Status: status}
	if err != nil {
		reply.Error = err.Error()
	}

	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		log.Warn("Failed to write control reply", "err", err)
	}
}

// SendCommand sends msg to the daemon at path and decodes its reply into out
// when out is non-nil. A reply with an error is returned as an error.
func SendCommand(path string, msg ControlMessage, out any) error {
	if path == "" {
		path = DefaultSocketPath
	}

	conn, err := net.DialTimeout("unix", path, ioTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", path, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(ioTimeout))

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	var raw struct {
		Reply
		Status json.RawMessage `json:"status,omitempty"`
	}
	if err := json.NewDecoder(conn).Decode(&raw); err != nil {
		return fmt.Errorf("read reply: %w", err)
	}

	if out != nil && len(raw.Status) > 0 {
		if err := json.Unmarshal(raw.Status, out); err != nil {
			return fmt.Errorf("decode status: %w", err)
		}
	}
	if !raw.OK {
		return errors.New(raw.Error)
	}
	return nil
}
