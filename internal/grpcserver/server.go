package grpcserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"shiftstore/internal/config"
	"shiftstore/internal/pipeline"
	"shiftstore/internal/storage"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Submitter queues focus jobs.
type Submitter interface {
	Submit(job pipeline.Job) error
}

// Server implements FocusServer on top of the run pipeline and store.
type Server struct {
	cfg   *config.Config
	store *storage.Store
	queue Submitter
	log   *slog.Logger
}

// NewServer creates the gRPC focus service.
func NewServer(cfg *config.Config, store *storage.Store, queue Submitter, log *slog.Logger) *Server {
	return &Server{cfg: cfg, store: store, queue: queue, log: log}
}

// Submit queues a run. The request carries the same fields as POST /runs.
func (s *Server) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req pipeline.Request
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	job, err := req.Job(s.cfg)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.queue.Submit(job); err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	s.log.Info("run submitted", "run", job.ID, "catalog", job.InputPath, "via", "grpc")
	return structpb.NewStruct(map[string]any{"id": job.ID, "status": pipeline.StatusQueued})
}

// GetRun returns the stored record and meta of the run named by the "id" field.
func (s *Server) GetRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := in.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	rec, err := s.store.Run(id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, status.Errorf(codes.NotFound, "run %s not found", id)
	}
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	resp := map[string]any{"run": rec}
	if meta, err := s.store.RunMeta(id); err == nil {
		resp["meta"] = meta
	}
	out, err := toStruct(resp)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	gs := grpc.NewServer()
	RegisterFocusServer(gs, s)

	go func() {
		<-ctx.Done()
		gs.GracefulStop()
	}()

	s.log.Info("gRPC server starting", "addr", lis.Addr().String())
	return gs.Serve(lis)
}

// toStruct converts any JSON-encodable value into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func fromStruct(in *structpb.Struct, v any) error {
	data, err := json.Marshal(in.AsMap())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
