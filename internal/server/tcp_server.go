package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ambworks/spc-server/internal/connection"
	"github.com/ambworks/spc-server/internal/engine"
	"github.com/ambworks/spc-server/internal/protocol"
	"github.com/ambworks/spc-server/internal/timer"
	"github.com/ambworks/spc-server/pkg/config"
)

// TCPServer accepts measurement station connections and feeds readings
// into the statistics engine.
type TCPServer struct {
	config      *config.TCPServerConfig
	connManager *connection.Manager
	scheduler   *timer.Scheduler
	engine      *engine.Engine
	listener    net.Listener
	wg          sync.WaitGroup
	stopCh      chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewTCPServer creates a new TCP server
func NewTCPServer(cfg *config.TCPServerConfig, connManager *connection.Manager, scheduler *timer.Scheduler, eng *engine.Engine) *TCPServer {
	ctx, cancel := context.WithCancel(context.Background())
	return &TCPServer{
		config:      cfg,
		connManager: connManager,
		scheduler:   scheduler,
		engine:      eng,
		stopCh:      make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the TCP server
func (s *TCPServer) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start TCP server: %w", err)
	}

	s.listener = listener
	fmt.Printf("TCP server listening on %s\n", addr)

	s.wg.Add(1)
	go s.acceptConnections()

	return nil
}

// Stop stops the TCP server gracefully
func (s *TCPServer) Stop() {
	close(s.stopCh)
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}

	s.wg.Wait()
	fmt.Println("TCP server stopped")
}

func (s *TCPServer) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				fmt.Printf("Failed to accept connection: %v\n", err)
				continue
			}
		}

		// Check max connections
		if s.connManager.Count() >= s.config.MaxConnections {
			fmt.Println("Maximum connections reached, rejecting connection")
			conn.Close()
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *TCPServer) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	connectionID := uuid.New().String()
	fmt.Printf("New connection: %s from %s\n", connectionID, conn.RemoteAddr())

	// Set identify timeout
	conn.SetReadDeadline(time.Now().Add(s.config.IdentifyTimeout))

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		fmt.Printf("Failed to read identify message: %v\n", err)
		return
	}

	msg, err := protocol.ParseMessage([]byte(line))
	if err != nil {
		fmt.Printf("Failed to parse identify message: %v\n", err)
		s.sendError(conn, "invalid message format")
		return
	}

	identifyMsg, ok := msg.(*protocol.IdentifyMessage)
	if !ok {
		fmt.Printf("Expected identify message, got %T\n", msg)
		s.sendError(conn, "expected identify message")
		return
	}

	if err := s.connManager.Register(connectionID, identifyMsg.StationID, identifyMsg.StationName, conn); err != nil {
		fmt.Printf("Failed to register station: %v\n", err)
		s.sendError(conn, "failed to register")
		return
	}
	defer s.connManager.Unregister(connectionID)
	defer s.scheduler.Cancel(inactivityTimerID(connectionID))

	fmt.Printf("Station identified: %s (station=%s, name=%s)\n", connectionID, identifyMsg.StationID, identifyMsg.StationName)

	ack := protocol.NewAckMessage(protocol.AckStatusIdentified, "")
	if err := s.sendMessage(conn, ack); err != nil {
		fmt.Printf("Failed to send ack: %v\n", err)
		return
	}

	s.scheduleInactivityTimer(connectionID)

	// Clear read deadline for normal operation
	conn.SetReadDeadline(time.Time{})

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		line, err := reader.ReadString('\n')
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				// Timeout, continue reading
				continue
			}
			fmt.Printf("Connection %s closed: %v\n", connectionID, err)
			return
		}

		msg, err := protocol.ParseMessage([]byte(line))
		if err != nil {
			fmt.Printf("Failed to parse message: %v\n", err)
			s.sendError(conn, "invalid message format")
			continue
		}

		if err := s.handleMessage(connectionID, identifyMsg.StationID, msg, conn); err != nil {
			fmt.Printf("Failed to handle message: %v\n", err)
		}

		s.connManager.UpdateActivity(connectionID)
		s.scheduleInactivityTimer(connectionID)
	}
}

func (s *TCPServer) handleMessage(connectionID, stationID string, msg interface{}, conn net.Conn) error {
	switch m := msg.(type) {
	case *protocol.ReadingMessage:
		return s.handleReading(connectionID, stationID, m, conn)

	case *protocol.KeepaliveMessage:
		return s.handleKeepalive(conn)

	default:
		return fmt.Errorf("unknown message type: %T", msg)
	}
}

func (s *TCPServer) handleReading(connectionID, stationID string, msg *protocol.ReadingMessage, conn net.Conn) error {
	result, err := s.engine.Submit(s.ctx, &msg.Data, stationID)
	if err != nil {
		// Structured rejection goes back to the station. The connection stays up.
		ack := protocol.NewAckMessage(protocol.AckStatusRejected, err.Error())
		if sendErr := s.sendMessage(conn, ack); sendErr != nil {
			return fmt.Errorf("failed to send rejection: %w", sendErr)
		}
		fmt.Printf("Rejected reading from %s (parameter=%s): %v\n", connectionID, msg.Data.ParameterID, err)
		return nil
	}

	detail := fmt.Sprintf("status=%s control=%s quality=%s", result.Status, result.ControlStatus, result.Quality)
	ack := protocol.NewAckMessage(protocol.AckStatusAccepted, detail)
	if err := s.sendMessage(conn, ack); err != nil {
		return fmt.Errorf("failed to send ack: %w", err)
	}

	fmt.Printf("Accepted reading from %s (parameter=%s, status=%s)\n", connectionID, msg.Data.ParameterID, result.Status)
	return nil
}

func (s *TCPServer) handleKeepalive(conn net.Conn) error {
	ack := protocol.NewAckMessage(protocol.AckStatusAlive, "")
	return s.sendMessage(conn, ack)
}

func (s *TCPServer) sendMessage(conn net.Conn, msg interface{}) error {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}

	_, err = conn.Write(append(data, '\n'))
	return err
}

func (s *TCPServer) sendError(conn net.Conn, errMsg string) {
	ack := protocol.NewAckMessage(protocol.AckStatusError, errMsg)
	s.sendMessage(conn, ack)
}

func inactivityTimerID(connectionID string) string {
	return fmt.Sprintf("inactivity-%s", connectionID)
}

func (s *TCPServer) scheduleInactivityTimer(connectionID string) {
	expiryAt := time.Now().Add(s.config.InactivityTimeout)

	callback := func() {
		fmt.Printf("Inactivity timeout for connection %s\n", connectionID)

		station, exists := s.connManager.Get(connectionID)
		if !exists {
			return
		}

		// Closing the connection unblocks the read loop; unregister happens
		// in the handler's deferred cleanup.
		station.Conn.Close()
	}

	s.scheduler.Schedule(inactivityTimerID(connectionID), expiryAt, callback)
}
