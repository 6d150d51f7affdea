package daemon

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tangthinker/foldersnap/internal/backup"
	"github.com/tangthinker/foldersnap/internal/ipc"
	"golang.org/x/time/rate"
)

// ErrThrottled is returned to clients that send commands too fast.
var ErrThrottled = errors.New("too many requests, try again later")

// Controller is the part of the scheduler exposed over the socket.
type Controller interface {
	Status() backup.Status
	Stop()
}

type Server struct {
	addr       string
	listener   net.Listener
	controller Controller
	limiter    *rate.Limiter
}

// NewServer creates a new Unix domain socket server
func NewServer(addr string, controller Controller) (*Server, error) {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(addr); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create socket: %w", err)
	}

	if err := os.Chmod(addr, 0600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}

	return &Server{
		addr:       addr,
		listener:   listener,
		controller: controller,
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
	}, nil
}

// Start handles incoming connections until Close. It returns nil after Close.
func (s *Server) Start() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("failed to accept connection: %w", err)
		}
		go s.handleConnection(conn)
	}
}

// Close closes the server
func (s *Server) Close() error {
	if err := s.listener.Close(); err != nil {
		return fmt.Errorf("failed to close listener: %w", err)
	}
	return os.RemoveAll(s.addr)
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	cmd, err := ipc.ReadCommand(conn)
	if err != nil {
		log.Debug().Err(err).Msg("failed to read command")
		s.send(conn, false, nil, fmt.Errorf("invalid command: %w", err))
		return
	}

	if !s.limiter.Allow() {
		log.Warn().Str("command", string(cmd.Type)).Msg("command throttled")
		s.send(conn, false, nil, ErrThrottled)
		return
	}

	switch cmd.Type {
	case ipc.CmdStatus:
		s.send(conn, true, s.controller.Status(), nil)
	case ipc.CmdStop:
		log.Info().Msg("stop requested over control socket")
		s.controller.Stop()
		s.send(conn, true, nil, nil)
	default:
		s.send(conn, false, nil, fmt.Errorf("unknown command type: %s", cmd.Type))
	}
}

func (s *Server) send(conn net.Conn, success bool, data any, cmdErr error) {
	resp, err := ipc.NewResponse(success, data, cmdErr)
	if err != nil {
		log.Error().Err(err).Msg("failed to build response")
		return
	}
	if err := ipc.WriteResponse(conn, resp); err != nil {
		log.Debug().Err(err).Msg("failed to send response")
	}
}
