// Package grpcserver exposes suite runs and recorded reports over gRPC.
package grpcserver

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"memlab/infra/store"
	"memlab/report"
)

// Runner executes one suite run.
type Runner interface {
	Run(ctx context.Context, w io.Writer) (*report.Report, error)
}

// Reports reads recorded runs.
type Reports interface {
	Get(id uint64) (store.Entry, error)
	List(limit int) ([]store.Entry, error)
}

const defaultListLimit = 20

// Server adapts the suite and the report store to ReportService.
type Server struct {
	runner  Runner
	reports Reports
	log     *zap.Logger

	// The suite measures process-wide heap deltas; runs must not overlap.
	mu sync.Mutex
}

// NewServer builds a server. reports may be nil when nothing is recorded.
func NewServer(runner Runner, reports Reports, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{runner: runner, reports: reports, log: log.Named("grpc")}
}

// -------------------- Commands --------------------

func (s *Server) Run(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var narration bytes.Buffer
	r, err := s.runner.Run(ctx, &narration)
	if err != nil {
		if r == nil {
			return nil, toStatus(err)
		}
		// Recording failed after a complete run; the caller still gets it.
		s.log.Warn("run finished with error", zap.Uint64("run", r.ID), zap.Error(err))
	}
	out, err := report.ToProto(r)
	if err != nil {
		return nil, toStatus(err)
	}
	out.Fields["narration"] = structpb.NewStringValue(narration.String())
	s.log.Info("Run", zap.Uint64("run", r.ID), zap.Duration("took", r.Duration))
	return out, nil
}

// -------------------- Queries --------------------

func (s *Server) Get(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.reports == nil {
		return nil, status.Error(codes.FailedPrecondition, "reports are not recorded")
	}
	idv, ok := req.GetFields()["id"]
	if !ok || idv.GetNumberValue() < 1 {
		return nil, status.Error(codes.InvalidArgument, "id must be a positive number")
	}
	e, err := s.reports.Get(uint64(idv.GetNumberValue()))
	if err != nil {
		return nil, toStatus(err)
	}
	return entryProto(e)
}

func (s *Server) List(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.reports == nil {
		return nil, status.Error(codes.FailedPrecondition, "reports are not recorded")
	}
	limit := defaultListLimit
	if v, ok := req.GetFields()["limit"]; ok {
		limit = int(v.GetNumberValue())
	}
	entries, err := s.reports.List(limit)
	if err != nil {
		return nil, toStatus(err)
	}
	items := make([]*structpb.Value, 0, len(entries))
	for _, e := range entries {
		p, err := entryProto(e)
		if err != nil {
			return nil, err
		}
		items = append(items, structpb.NewStructValue(p))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"reports": structpb.NewListValue(&structpb.ListValue{Values: items}),
	}}, nil
}

// -------------------- Converters --------------------

func entryProto(e store.Entry) (*structpb.Struct, error) {
	r, err := e.Report()
	if err != nil {
		return nil, toStatus(err)
	}
	p, err := report.ToProto(r)
	if err != nil {
		return nil, toStatus(err)
	}
	p.Fields["state"] = structpb.NewStringValue(e.State.String())
	return p, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// -------------------- Wiring --------------------

// New returns a gRPC server carrying ReportService and the standard
// health service, with every unary call logged.
func New(srv *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(logUnary(srv.log))}, opts...)
	g := grpc.NewServer(opts...)
	RegisterReportServiceServer(g, srv)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(g, hs)
	return g
}

func logUnary(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("call",
			zap.String("method", info.FullMethod),
			zap.Duration("took", time.Since(start)),
			zap.Stringer("code", status.Code(err)),
		)
		return resp, err
	}
}
