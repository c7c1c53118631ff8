package grpcserver

import (
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"memlab/infra/store"
	"memlab/report"
)

type fakeRunner struct {
	next uint64
	err  error
}

func (f *fakeRunner) Run(ctx context.Context, w io.Writer) (*report.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.next++
	fmt.Fprintln(w, "Memory Management Analysis Complete")
	return &report.Report{
		ID:        f.next,
		StartedAt: time.Unix(100, 0).UTC(),
		Duration:  time.Second,
		Sections: []report.Section{{
			Number:  1,
			Title:   "REFERENCE COUNTING DEMONSTRATION",
			Metrics: []report.Metric{{Name: "destroyed_at_release", Value: 2}},
		}},
	}, nil
}

func dial(t *testing.T, runner Runner, reports Reports) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	g := New(NewServer(runner, reports, zaptest.NewLogger(t)))
	go func() { _ = g.Serve(lis) }()
	t.Cleanup(g.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open("reports", store.InMemory())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRun(t *testing.T) {
	c := NewClient(dial(t, &fakeRunner{}, nil))

	out, err := c.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, out.Fields["narration"].GetStringValue(), "Analysis Complete")

	r, err := report.FromProto(out)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), r.ID)
	require.Len(t, r.Sections, 1)
	assert.Equal(t, 2.0, r.Sections[0].Metrics[0].Value)
}

func TestRunFailure(t *testing.T) {
	c := NewClient(dial(t, &fakeRunner{err: errors.Wrap(context.DeadlineExceeded, "suite")}, nil))

	_, err := c.Run(context.Background(), nil)
	assert.Equal(t, codes.DeadlineExceeded, status.Code(err))
}

func TestGetAndList(t *testing.T) {
	s := openStore(t)
	for id := uint64(1); id <= 3; id++ {
		require.NoError(t, s.Put(&report.Report{ID: id, StartedAt: time.Unix(int64(id), 0).UTC()}))
	}
	require.NoError(t, s.MarkAcked(2))
	c := NewClient(dial(t, &fakeRunner{}, s))
	ctx := context.Background()

	got, err := c.Get(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"id": structpb.NewNumberValue(2),
	}})
	require.NoError(t, err)
	assert.Equal(t, "2", got.Fields["id"].GetStringValue())
	assert.Equal(t, "ACKED", got.Fields["state"].GetStringValue())

	_, err = c.Get(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"id": structpb.NewNumberValue(99),
	}})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.Get(ctx, nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	list, err := c.List(ctx, &structpb.Struct{Fields: map[string]*structpb.Value{
		"limit": structpb.NewNumberValue(2),
	}})
	require.NoError(t, err)
	items := list.Fields["reports"].GetListValue().GetValues()
	require.Len(t, items, 2)
	assert.Equal(t, "3", items[0].GetStructValue().Fields["id"].GetStringValue())
	assert.Equal(t, "2", items[1].GetStructValue().Fields["id"].GetStringValue())
}

func TestQueriesWithoutStore(t *testing.T) {
	c := NewClient(dial(t, &fakeRunner{}, nil))

	_, err := c.List(context.Background(), nil)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))
}

func TestHealth(t *testing.T) {
	conn := dial(t, &fakeRunner{}, nil)

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
