// Package ipc exposes the daemon over a unix control socket using JSON-RPC.
// The CLI is the only intended client.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"podscribe/internal/daemon"
	"podscribe/internal/logging"
	"podscribe/internal/queue"
)

// ServiceName is the RPC namespace the CLI dials.
const ServiceName = "Podscribe"

// SocketName is the control socket file created in the log directory.
const SocketName = "podscribe.sock"

const requestTimeout = 30 * time.Second

// Server serves daemon operations on a unix socket.
type Server struct {
	logger   *slog.Logger
	rpc      *rpc.Server
	listener net.Listener

	mu     sync.Mutex
	closed bool
	conns  map[net.Conn]struct{}
	wg     sync.WaitGroup
}

// NewServer registers the daemon's operations under ServiceName.
func NewServer(d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := rpc.NewServer()
	if err := srv.RegisterName(ServiceName, &service{daemon: d}); err != nil {
		return nil, fmt.Errorf("register rpc service: %w", err)
	}
	return &Server{
		logger: logging.NewComponentLogger(logger, "ipc"),
		rpc:    srv,
		conns:  make(map[net.Conn]struct{}),
	}, nil
}

// Listen binds the control socket, replacing a stale socket file from a
// previous run. The socket is owner-only.
func (s *Server) Listen(socketPath string) error {
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on control socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		listener.Close()
		return fmt.Errorf("restrict socket permissions: %w", err)
	}
	s.listener = listener
	return nil
}

// Serve accepts connections until Close is called.
func (s *Server) Serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return
			}
			s.logger.Warn("accept control connection", logging.Error(err))
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.rpc.ServeCodec(jsonrpc.NewServerCodec(conn))
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
			conn.Close()
		}()
	}
}

// Close stops accepting, drops open connections, and removes the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.wg.Wait()
	return err
}

// service implements the RPC surface. Every method follows the net/rpc
// signature shape.
type service struct {
	daemon *daemon.Daemon
}

func (s *service) Status(_ Empty, reply *StatusReply) error {
	ctx, cancel := opContext()
	defer cancel()
	status, err := s.daemon.Status(ctx)
	if err != nil {
		return err
	}
	reply.Daemon = status
	return nil
}

func (s *service) ListQueue(args ListQueueArgs, reply *ListQueueReply) error {
	ctx, cancel := opContext()
	defer cancel()

	statuses := make([]queue.Status, 0, len(args.Statuses))
	for _, raw := range args.Statuses {
		status, ok := queue.ParseStatus(raw)
		if !ok {
			return fmt.Errorf("unknown status %q", raw)
		}
		statuses = append(statuses, status)
	}

	items, err := s.daemon.Store().List(ctx, statuses...)
	if err != nil {
		return err
	}
	reply.Items = make([]QueueItem, 0, len(items))
	for _, item := range items {
		title := ""
		if ep, err := s.daemon.Store().GetEpisode(ctx, item.EpisodeID); err == nil && ep != nil {
			title = ep.Title
		}
		reply.Items = append(reply.Items, itemFromQueue(item, title))
	}
	return nil
}

func (s *service) ListEpisodes(_ Empty, reply *ListEpisodesReply) error {
	ctx, cancel := opContext()
	defer cancel()
	episodes, err := s.daemon.Store().ListEpisodes(ctx)
	if err != nil {
		return err
	}
	reply.Episodes = make([]Episode, 0, len(episodes))
	for _, ep := range episodes {
		reply.Episodes = append(reply.Episodes, episodeFromQueue(ep))
	}
	return nil
}

func (s *service) AddEpisode(args AddEpisodeArgs, reply *AddEpisodeReply) error {
	ctx, cancel := opContext()
	defer cancel()

	existing, err := s.daemon.Store().GetEpisodeByAudioURL(ctx, args.AudioURL)
	if err != nil {
		return err
	}
	ep, err := s.daemon.Store().AddEpisode(ctx, &queue.Episode{
		Title:         args.Title,
		AudioURL:      args.AudioURL,
		EpisodeNumber: args.EpisodeNumber,
		PublishedAt:   args.PublishedAt,
	})
	if err != nil {
		return err
	}
	reply.EpisodeID = ep.ID
	reply.Existing = existing != nil

	if args.Enqueue {
		if _, err := s.daemon.Store().Enqueue(ctx, ep.ID, args.Priority); err != nil {
			return err
		}
		reply.Queued = true
	}
	return nil
}

func (s *service) Enqueue(args EnqueueArgs, reply *Empty) error {
	ctx, cancel := opContext()
	defer cancel()
	_, err := s.daemon.Store().Enqueue(ctx, args.EpisodeID, args.Priority)
	return err
}

func (s *service) RequeueDiarization(args RequeueArgs, reply *Empty) error {
	ctx, cancel := opContext()
	defer cancel()
	return s.daemon.Store().RequeueForDiarization(ctx, args.EpisodeID, args.Priority)
}

func (s *service) RetryFailed(args RetryArgs, reply *CountReply) error {
	ctx, cancel := opContext()
	defer cancel()
	count, err := s.daemon.Store().RetryFailed(ctx, args.ItemIDs...)
	if err != nil {
		return err
	}
	reply.Count = count
	return nil
}

func (s *service) Clear(args ClearArgs, reply *CountReply) error {
	ctx, cancel := opContext()
	defer cancel()
	var (
		count int64
		err   error
	)
	switch args.Scope {
	case "completed":
		count, err = s.daemon.Store().ClearCompleted(ctx)
	case "failed":
		count, err = s.daemon.Store().ClearFailed(ctx)
	case "all":
		count, err = s.daemon.Store().Clear(ctx)
	default:
		return fmt.Errorf("unknown clear scope %q", args.Scope)
	}
	if err != nil {
		return err
	}
	reply.Count = count
	return nil
}

func (s *service) Remove(args RemoveArgs, reply *Empty) error {
	ctx, cancel := opContext()
	defer cancel()
	removed, err := s.daemon.Store().Remove(ctx, args.ItemID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no queue item with id %d", args.ItemID)
	}
	return nil
}

// Start resumes the background worker after a Stop. The daemon process keeps
// running either way.
func (s *service) Start(_ Empty, reply *Empty) error {
	return s.daemon.Start(context.Background())
}

func (s *service) Stop(_ Empty, reply *Empty) error {
	s.daemon.Stop()
	return nil
}

func (s *service) Cancel(_ Empty, reply *Empty) error {
	return s.daemon.CancelCurrent()
}

func (s *service) TestNotification(_ Empty, reply *Empty) error {
	ctx, cancel := opContext()
	defer cancel()
	return s.daemon.TestNotification(ctx)
}

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}
