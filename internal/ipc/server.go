package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sort"
	"sync"
	"time"

	"log/slog"

	"gavel/internal/daemon"
	"gavel/internal/hearings"
	"gavel/internal/logging"
	"gavel/internal/logs"
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Gavel", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	if s.logger == nil {
		return logging.NewNop()
	}
	return s.logger.With(logging.String(logging.FieldComponent, "ipc"))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.Instance = status.Pipeline.Instance
	resp.DatabasePath = status.DatabasePath
	resp.LockPath = status.LockPath
	resp.LogPath = status.LogPath
	resp.StalledCount = status.Pipeline.StalledCount
	resp.InFlight = status.Pipeline.InFlight
	resp.LastError = status.Pipeline.LastError
	resp.StageCounts = make(map[string]int, len(status.Pipeline.StageCounts))
	for stage, count := range status.Pipeline.StageCounts {
		resp.StageCounts[string(stage)] = count
	}
	if len(status.Pipeline.StageHealth) > 0 {
		names := make([]string, 0, len(status.Pipeline.StageHealth))
		for name := range status.Pipeline.StageHealth {
			names = append(names, name)
		}
		sort.Strings(names)
		resp.StageHealth = make([]StageHealth, 0, len(names))
		for _, name := range names {
			health := status.Pipeline.StageHealth[name]
			resp.StageHealth = append(resp.StageHealth, StageHealth{
				Name:   name,
				Ready:  health.Ready,
				Detail: health.Detail,
			})
		}
	}
	return nil
}

func (s *service) Add(req AddRequest, resp *AddResponse) error {
	s.log().Debug("hearing add requested", logging.String("source_url", req.SourceURL))
	hearing, created, err := s.daemon.AddHearing(s.ctx, hearings.NewHearing{
		CommitteeCode: req.CommitteeCode,
		Title:         req.Title,
		HearingDate:   req.HearingDate,
		SourceURL:     req.SourceURL,
	})
	if err != nil {
		return err
	}
	resp.Hearing = FromHearing(hearing)
	resp.Created = created
	return nil
}

func (s *service) List(req ListRequest, resp *ListResponse) error {
	stages := make([]hearings.Stage, 0, len(req.Stages))
	for _, name := range req.Stages {
		parsed, ok := hearings.ParseStage(name)
		if !ok {
			continue
		}
		stages = append(stages, parsed)
	}
	items, err := s.daemon.ListHearings(s.ctx, stages, req.StalledOnly)
	if err != nil {
		return err
	}
	resp.Hearings = make([]HearingSummary, 0, len(items))
	for _, hearing := range items {
		if hearing == nil {
			continue
		}
		resp.Hearings = append(resp.Hearings, FromHearing(hearing))
	}
	return nil
}

func (s *service) Search(req SearchRequest, resp *SearchResponse) error {
	items, err := s.daemon.SearchHearings(s.ctx, req.Query)
	if err != nil {
		return err
	}
	resp.Hearings = make([]HearingSummary, 0, len(items))
	for _, hearing := range items {
		if hearing == nil {
			continue
		}
		resp.Hearings = append(resp.Hearings, FromHearing(hearing))
	}
	return nil
}

func (s *service) Describe(req DescribeRequest, resp *DescribeResponse) error {
	if req.ID <= 0 {
		return fmt.Errorf("invalid hearing id %d", req.ID)
	}
	report, err := s.daemon.HearingStatus(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Hearing = FromHearing(report.Hearing)
	resp.InFlight = report.InFlight
	if report.LastAttempt != nil {
		dto := FromAttempt(report.LastAttempt)
		resp.LastAttempt = &dto
	}
	return nil
}

func (s *service) Advance(req AdvanceRequest, resp *AdvanceResponse) error {
	target, ok := hearings.ParseStage(req.Target)
	if !ok {
		return fmt.Errorf("unknown stage %q", req.Target)
	}
	s.log().Debug("stage advance requested",
		logging.Int64(logging.FieldHearingID, req.ID),
		logging.String(logging.FieldStage, string(target)))
	if err := s.daemon.RequestStage(s.ctx, req.ID, target); err != nil {
		return err
	}
	resp.Accepted = true
	return nil
}

func (s *service) Approve(req ApproveRequest, resp *ApproveResponse) error {
	s.log().Debug("approval requested", logging.Int64(logging.FieldHearingID, req.ID))
	hearing, err := s.daemon.Approve(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Hearing = FromHearing(hearing)
	return nil
}

func (s *service) Cancel(req CancelRequest, resp *CancelResponse) error {
	s.log().Debug("cancellation requested", logging.Int64(logging.FieldHearingID, req.ID))
	if err := s.daemon.CancelAttempt(req.ID); err != nil {
		return err
	}
	resp.Cancelled = true
	return nil
}

func (s *service) Reset(req ResetRequest, resp *ResetResponse) error {
	if req.Stage != "" {
		if len(req.IDs) != 1 {
			return errors.New("reset to an explicit stage requires exactly one id")
		}
		target, ok := hearings.ParseStage(req.Stage)
		if !ok {
			return fmt.Errorf("unknown stage %q", req.Stage)
		}
		s.log().Debug("stage reset requested",
			logging.Int64(logging.FieldHearingID, req.IDs[0]),
			logging.String(logging.FieldStage, string(target)))
		if err := s.daemon.ResetToStage(s.ctx, req.IDs[0], target); err != nil {
			return err
		}
		resp.Updated = 1
		return nil
	}
	if !req.All && len(req.IDs) == 0 {
		return errors.New("reset requires hearing ids or the all flag")
	}
	ids := req.IDs
	if req.All {
		ids = nil
	}
	s.log().Debug("stall reset requested", logging.Int("id_count", len(ids)))
	updated, err := s.daemon.ResetStalled(s.ctx, ids)
	if err != nil {
		return err
	}
	resp.Updated = updated
	return nil
}

func (s *service) Remove(req RemoveRequest, resp *RemoveResponse) error {
	s.log().Debug("removal requested", logging.Int64(logging.FieldHearingID, req.ID))
	removed, err := s.daemon.RemoveHearing(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Removed = removed
	return nil
}

func (s *service) Attempts(req AttemptsRequest, resp *AttemptsResponse) error {
	attempts, err := s.daemon.Attempts(s.ctx, req.ID)
	if err != nil {
		return err
	}
	resp.Attempts = make([]AttemptSummary, 0, len(attempts))
	for _, attempt := range attempts {
		if attempt == nil {
			continue
		}
		resp.Attempts = append(resp.Attempts, FromAttempt(attempt))
	}
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		resp.Offset = 0
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	options := logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, options)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) HearingsHealth(_ HearingsHealthRequest, resp *HearingsHealthResponse) error {
	health, err := s.daemon.HearingsHealth(s.ctx)
	if err != nil {
		return err
	}
	resp.Total = health.Total
	resp.Active = health.Active
	resp.Stalled = health.Stalled
	resp.Published = health.Published
	return nil
}

func (s *service) DatabaseHealth(_ DatabaseHealthRequest, resp *DatabaseHealthResponse) error {
	health, err := s.daemon.DatabaseHealth(s.ctx)
	if err != nil && health.Error == "" {
		return err
	}
	resp.DBPath = health.DBPath
	resp.DatabaseExists = health.DatabaseExists
	resp.DatabaseReadable = health.DatabaseReadable
	resp.SchemaVersion = health.SchemaVersion
	resp.TableExists = health.TableExists
	resp.ColumnsPresent = append(resp.ColumnsPresent, health.ColumnsPresent...)
	resp.MissingColumns = append(resp.MissingColumns, health.MissingColumns...)
	resp.IntegrityCheck = health.IntegrityCheck
	resp.TotalHearings = health.TotalHearings
	resp.Error = health.Error
	return err
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	resp.Sent = sent
	resp.Message = message
	return err
}
