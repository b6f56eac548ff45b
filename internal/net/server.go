package net

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"ome/internal/bus"
	"ome/internal/protocol"
	"ome/internal/utils"
)

const (
	defaultNWorkers     = 10
	defaultSessionQueue = 256
	defaultWriteTimeout = time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// heartbeatPrompt is sent to a session that speaks before identifying itself.
var heartbeatPrompt = []byte{protocol.HeartbeatType}

// Submitter accepts raw inbound order messages. Reject answers a message the
// gateway refused to submit.
type Submitter interface {
	Submit(ctx context.Context, raw []byte) error
	Reject(ctx context.Context, header protocol.Header, reason byte)
}

// ClientSession contains relevant information pertaining to an individual
// connected TCP session.
type ClientSession struct {
	id   uuid.UUID
	conn net.Conn
	mpid string // Empty until the first heartbeat. Guarded by clientSessionsLock.

	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (session *ClientSession) close() {
	session.closeOnce.Do(func() {
		close(session.done)
		if err := session.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Error().Err(err).Str("session", session.id.String()).Msg("unable to close connection")
		}
	})
}

type Server struct {
	address      string
	port         int
	sessionQueue int
	pool         *utils.WorkerPool
	submitter    Submitter

	clientSessions     map[uuid.UUID]*ClientSession
	clientSessionsLock sync.Mutex

	addr  net.Addr
	ready chan struct{}
}

// New builds a gateway that serves at most maxConnections sessions at once;
// further connections wait for a free worker.
func New(address string, port int, maxConnections uint, sessionQueue int, submitter Submitter) *Server {
	if maxConnections == 0 {
		maxConnections = defaultNWorkers
	}
	if sessionQueue <= 0 {
		sessionQueue = defaultSessionQueue
	}
	return &Server{
		address:        address,
		port:           port,
		sessionQueue:   sessionQueue,
		pool:           utils.NewWorkerPool(maxConnections),
		submitter:      submitter,
		clientSessions: make(map[uuid.UUID]*ClientSession),
		ready:          make(chan struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr is the bound listener address. Only valid after Ready.
func (s *Server) Addr() net.Addr { return s.addr }

// Run serves sessions until ctx is canceled. reports carries encoded
// outbound reports, each delivered to the sessions bound to its mpid.
func (s *Server) Run(ctx context.Context, reports <-chan bus.Envelope) error {
	t, ctx := tomb.WithContext(ctx)

	// Start a tcp listener.
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", net.JoinHostPort(s.address, strconv.Itoa(s.port)))
	if err != nil {
		return fmt.Errorf("unable to start listener: %w", err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	// Start the worker pool.
	s.pool.Setup(t, s.handleConnection)

	// Start the report router.
	t.Go(func() error {
		return s.router(t, reports)
	})

	// Unblock Accept and every session read on shutdown.
	t.Go(func() error {
		<-t.Dying()
		if err := listener.Close(); err != nil {
			log.Error().Err(err).Msg("unable to close listener")
		}
		s.closeSessions()
		return nil
	})

	log.Info().Str("address", s.addr.String()).Int("workers", s.pool.Size()).Msg("server running")

	// Start accepting connections.
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || !t.Alive() {
				break
			}
			log.Error().Err(err).Msg("error accepting client")
			continue
		}

		// We expect to potentially maintain a long TCP session.
		session := s.addClientSession(conn)
		log.Info().
			Str("address", conn.RemoteAddr().String()).
			Str("session", session.id.String()).
			Msg("new client added")

		// Pass over the session to be served by a worker.
		if err := s.pool.AddTask(t, session); err != nil {
			log.Warn().Err(err).Str("session", session.id.String()).Msg("refusing client")
			s.deleteClientSession(session)
		}
	}

	s.pool.Drain(func(task any) {
		if session, ok := task.(*ClientSession); ok {
			s.deleteClientSession(session)
		}
	})

	log.Info().Msg("server shutting down")
	if err := t.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Report delivers an encoded report to every session bound to its mpid.
// A session whose queue is full misses the report.
func (s *Server) Report(payload []byte) error {
	mpid, ok := protocol.SubmitterOf(payload)
	if !ok {
		return fmt.Errorf("report of %d bytes: %w", len(payload), protocol.ErrMessageTooShort)
	}

	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	found := false
	for _, session := range s.clientSessions {
		if session.mpid == "" || session.mpid != mpid {
			continue
		}
		found = true
		if !s.send(session, payload) {
			log.Warn().Str("session", session.id.String()).Str("mpid", mpid).Msg("session queue full, dropping report")
		}
	}
	if !found {
		return fmt.Errorf("mpid %q: %w", mpid, ErrClientDoesNotExist)
	}
	return nil
}

// router forwards outbound reports from the bus to the sessions.
func (s *Server) router(t *tomb.Tomb, reports <-chan bus.Envelope) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case env, ok := <-reports:
			if !ok {
				return nil
			}
			if err := s.Report(env.Payload); err != nil {
				log.Info().Err(err).Str("topic", env.Topic).Msg("discarding report")
			}
		}
	}
}

// handleConnection is a long-lived worker method serving one session until
// the client leaves or the server shuts down. Frames are read in order and
// submitted one at a time, so a session's messages reach the engine in the
// order they were sent.
// Note, any error returned from here is fatal.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	session, ok := task.(*ClientSession)
	if !ok {
		return ErrImproperConversion
	}
	defer s.deleteClientSession(session)

	t.Go(func() error {
		s.writer(t, session)
		return nil
	})

	ctx := t.Context(nil)
	reader := bufio.NewReader(session.conn)
	for {
		frame, err := protocol.ReadFrame(reader)
		if errors.Is(err, protocol.ErrEmptyFrame) {
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				log.Info().Str("session", session.id.String()).Msg("client disconnected")
			} else {
				log.Error().Err(err).Str("session", session.id.String()).Msg("error reading from connection")
			}
			return nil
		}

		s.handleFrame(ctx, session, frame)
	}
}

func (s *Server) handleFrame(ctx context.Context, session *ClientSession, frame []byte) {
	mpid := s.mpid(session)

	if frame[0] == protocol.HeartbeatType {
		hb, err := protocol.DecodeHeartbeat(frame)
		if err != nil || hb.MPID == "" {
			s.send(session, heartbeatPrompt)
			return
		}
		if mpid == "" {
			s.bind(session, hb.MPID)
		} else if hb.MPID != mpid {
			log.Warn().Str("session", session.id.String()).Str("mpid", mpid).Str("heartbeat", hb.MPID).Msg("heartbeat for another mpid")
			return
		}
		s.send(session, frame)
		return
	}

	if mpid == "" {
		log.Debug().Str("session", session.id.String()).Msg("mpid not set")
		s.send(session, heartbeatPrompt)
		return
	}
	header, ok := protocol.PeekHeader(frame)
	if !ok {
		// Too short to carry an mpid, so answer on behalf of the session.
		log.Info().Str("session", session.id.String()).Int("length", len(frame)).Msg("rejecting short message")
		s.submitter.Reject(ctx, protocol.Header{MPID: mpid}, protocol.ReasonInvalid)
		return
	}
	if header.MPID != mpid {
		log.Warn().Str("session", session.id.String()).Str("mpid", mpid).Str("claimed", header.MPID).Msg("dropping message for another mpid")
		return
	}

	if err := s.submitter.Submit(ctx, frame); err != nil {
		log.Error().Err(err).Str("session", session.id.String()).Msg("unable to submit message")
	}
}

// writer is the only goroutine writing to a session's connection.
func (s *Server) writer(t *tomb.Tomb, session *ClientSession) {
	for {
		select {
		case <-t.Dying():
			return
		case <-session.done:
			return
		case payload := <-session.out:
			if err := session.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout)); err != nil {
				session.close()
				return
			}
			if err := protocol.WriteFrame(session.conn, payload); err != nil {
				log.Error().Err(err).Str("session", session.id.String()).Msg("unable to send to client")
				session.close()
				return
			}
		}
	}
}

// send queues payload for the session without blocking.
func (s *Server) send(session *ClientSession, payload []byte) bool {
	select {
	case session.out <- payload:
		return true
	default:
		return false
	}
}

func (s *Server) mpid(session *ClientSession) string {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	return session.mpid
}

func (s *Server) bind(session *ClientSession, mpid string) {
	s.clientSessionsLock.Lock()
	session.mpid = mpid
	s.clientSessionsLock.Unlock()

	log.Info().Str("session", session.id.String()).Str("mpid", mpid).Msg("session bound")
}

// addClientSession is an atomic map add
func (s *Server) addClientSession(conn net.Conn) *ClientSession {
	session := &ClientSession{
		id:   uuid.New(),
		conn: conn,
		out:  make(chan []byte, s.sessionQueue),
		done: make(chan struct{}),
	}

	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()
	s.clientSessions[session.id] = session
	return session
}

// deleteClientSession is an atomic map remove
func (s *Server) deleteClientSession(session *ClientSession) {
	s.clientSessionsLock.Lock()
	delete(s.clientSessions, session.id)
	s.clientSessionsLock.Unlock()

	session.close()
}

func (s *Server) closeSessions() {
	s.clientSessionsLock.Lock()
	sessions := make([]*ClientSession, 0, len(s.clientSessions))
	for _, session := range s.clientSessions {
		sessions = append(sessions, session)
	}
	s.clientSessionsLock.Unlock()

	for _, session := range sessions {
		s.deleteClientSession(session)
	}
}
