package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"go.uber.org/zap"

	"harbor/pkg/ingest"
	"harbor/pkg/logger"
	"harbor/pkg/models"
	"harbor/pkg/relay"
	"harbor/pkg/store"
	"harbor/pkg/subs"
	"harbor/pkg/worker"
)

const connDeadline = 30 * time.Second

// Server answers control-plane requests on a unix socket. One goroutine
// per connection; connections are expected to be short-lived
// one-request sessions from the CLI.
type Server struct {
	socketPath string
	worker     *worker.Worker
	pool       *relay.Pool
	queue      *ingest.Queue
	shutdown   context.CancelFunc

	ln net.Listener
}

// NewServer wires the control plane. shutdown is invoked by the shutdown
// command and should cancel the daemon's root context.
func NewServer(socketPath string, w *worker.Worker, pool *relay.Pool, queue *ingest.Queue, shutdown context.CancelFunc) *Server {
	return &Server{socketPath: socketPath, worker: w, pool: pool, queue: queue, shutdown: shutdown}
}

// Listen binds the socket, replacing a stale one left by a dead process.
func (s *Server) Listen() error {
	if _, err := os.Stat(s.socketPath); err == nil {
		if conn, derr := net.DialTimeout("unix", s.socketPath, time.Second); derr == nil {
			conn.Close()
			return fmt.Errorf("daemon already running on %s", s.socketPath)
		}
		_ = os.Remove(s.socketPath)
	}
	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.socketPath, err)
	}
	s.ln = ln
	return nil
}

// Serve accepts connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = s.ln.Close()
		_ = os.Remove(s.socketPath)
	}()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Warn("control_accept_failed", zap.Error(err))
			continue
		}
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(connDeadline))

	var req Request
	if err := readFrame(conn, &req); err != nil {
		return
	}
	resp := s.execute(ctx, req)
	if err := writeFrame(conn, resp); err != nil {
		logger.Log.Debug("control_write_failed", zap.Error(err))
	}
}

func (s *Server) execute(ctx context.Context, req Request) Response {
	switch req.Command {
	case "status":
		return s.statusCmd()
	case "open-project":
		return s.openProjectCmd(ctx, req.Args)
	case "send-message":
		return s.sendMessageCmd(ctx, req.Args)
	case "shutdown":
		logger.Log.Info("shutdown_requested", zap.String("via", "control"))
		s.shutdown()
		return Response{OK: true}
	default:
		return Response{Error: fmt.Sprintf("unknown command %q", req.Command)}
	}
}

type statusData struct {
	User       string   `json:"user"`
	RelaysOpen int      `json:"relays_open"`
	Relays     []string `json:"relays"`
	QueueDepth int      `json:"queue_depth"`
	StoreReady bool     `json:"store_ready"`
	StoreHalt  bool     `json:"store_halted"`
}

func (s *Server) statusCmd() Response {
	data, err := json.Marshal(statusData{
		User:       s.worker.User(),
		RelaysOpen: s.pool.OpenCount(),
		Relays:     s.pool.Relays(),
		QueueDepth: s.queue.Len(),
		StoreReady: store.Ready(),
		StoreHalt:  store.Halted(),
	})
	if err != nil {
		return Response{Error: err.Error()}
	}
	return Response{OK: true, Data: data}
}

func (s *Server) openProjectCmd(ctx context.Context, args map[string]string) Response {
	addr := args["project"]
	if _, err := models.ParseAddress(addr); err != nil {
		return Response{Error: err.Error()}
	}
	name := subs.ProjectName(addr)
	if err := s.worker.Subscribe(ctx, name, subs.ProjectFilters(addr)); err != nil {
		return Response{Error: err.Error()}
	}
	data, _ := json.Marshal(map[string]string{"subscription": name})
	return Response{OK: true, Data: data}
}

func (s *Server) sendMessageCmd(ctx context.Context, args map[string]string) Response {
	project := args["project"]
	content := args["content"]
	if project == "" || content == "" {
		return Response{Error: "send-message requires project and content"}
	}
	if _, err := models.ParseAddress(project); err != nil {
		return Response{Error: err.Error()}
	}

	ev := &nostr.Event{
		Kind:    models.KindMessage,
		Content: content,
		Tags:    nostr.Tags{{"a", project}},
	}
	if thread := args["thread"]; thread != "" {
		ev.Tags = append(ev.Tags, nostr.Tag{"e", thread, "", "root"})
	}

	res, err := s.worker.Publish(ctx, ev)
	if err != nil && len(res.Accepted) == 0 {
		return Response{Error: err.Error()}
	}
	data, merr := json.Marshal(res)
	if merr != nil {
		return Response{Error: merr.Error()}
	}
	// Partial acceptance still succeeds; the result details say how far
	// the event got.
	return Response{OK: true, Data: data}
}
