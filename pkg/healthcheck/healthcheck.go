// Package healthcheck reports the readiness of the recorder over a unix
// socket.
package healthcheck

import (
	"context"
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
)

// ReadyMsg is written to every client once the recorder is ready.
const ReadyMsg = 0x01

var (
	ErrNotSocket = errors.New("path exists but is not a unix socket")
	ErrTimeout   = errors.New("timeout waiting for readiness")
)

type Server struct {
	ln         net.Listener
	readyCh    chan struct{}
	readyOnce  sync.Once
	socketPath string
	logger     log.Logger
}

func NewServer(socketPath string, logger log.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		readyCh:    make(chan struct{}),
		logger:     logger.With().Str("component", "healthcheck").Logger(),
	}
}

// Listen starts accepting connections on the socket, replacing a stale
// socket file.
func (s *Server) Listen(ctx context.Context) error {
	os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return errors.Wrap(err, "failed to listen on unix socket")
	}
	s.ln = ln

	go s.acceptConnections(ctx)

	return nil
}

// NotifyReady answers pending and future clients with ReadyMsg.
func (s *Server) NotifyReady() {
	s.readyOnce.Do(func() {
		s.logger.Debug().Msg("marking readiness")
		close(s.readyCh)
	})
}

// Shutdown closes the listener and removes the socket file.
func (s *Server) Shutdown() error {
	if s.ln != nil {
		if err := s.ln.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("error closing listener")
		}
	}

	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		s.logger.Debug().Err(err).Msg("error removing socket")
		return err
	}

	return nil
}

func (s *Server) acceptConnections(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug().Msg("stopping accepting connections")
			return
		default:
		}

		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn().Err(err).Msg("accept error")
			continue
		}

		go s.processConnection(ctx, conn)
	}
}

func (s *Server) processConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	select {
	case <-s.readyCh:
		if !s.isConnectionAlive(conn) {
			return
		}
		if _, err := conn.Write([]byte{ReadyMsg}); err != nil {
			if !errors.Is(err, syscall.EPIPE) && !errors.Is(err, syscall.ECONNRESET) {
				s.logger.Debug().Err(err).Msg("failed to write")
			}
		}
	case <-ctx.Done():
		return
	}
}

func (s *Server) isConnectionAlive(conn net.Conn) bool {
	conn.SetReadDeadline(time.Now())
	defer conn.SetReadDeadline(time.Time{})

	if _, err := conn.Read([]byte{}); err == io.EOF {
		s.logger.Debug().Msg("client already closed the connection")
		return false
	}

	return true
}

// WaitReady polls the socket until the server reports readiness or ctx is
// done.
func WaitReady(ctx context.Context, socketPath string, retryInterval time.Duration) error {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		ready, err := probe(socketPath, retryInterval)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ErrTimeout, ctx.Err().Error())
		case <-ticker.C:
		}
	}
}

// probe makes a single readiness attempt. Only errors no retry can fix are
// returned.
func probe(socketPath string, timeout time.Duration) (bool, error) {
	info, err := os.Stat(socketPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, "error checking socket")
	}
	if info.Mode()&os.ModeSocket == 0 {
		return false, errors.Wrap(ErrNotSocket, socketPath)
	}

	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		if errors.Is(err, syscall.EACCES) {
			return false, errors.Wrap(err, "failed connecting")
		}
		return false, nil
	}
	defer conn.Close()

	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(timeout))
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return false, nil
	}

	return buf[0] == ReadyMsg, nil
}
