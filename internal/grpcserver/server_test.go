package grpcserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"

	"shiftstore/internal/config"
	"shiftstore/internal/pipeline"
	"shiftstore/internal/storage"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type recordingQueue struct {
	jobs []pipeline.Job
	err  error
}

func (q *recordingQueue) Submit(job pipeline.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func startTestServer(t *testing.T) (*Client, *recordingQueue, *storage.Store) {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := &config.Config{Focus: config.Focus{
		Shifts:            []float64{10, 10},
		Horizontal:        true,
		WindowTolerance:   5,
		PositionTolerance: 5,
		Sequences:         15,
	}}
	q := &recordingQueue{}
	srv := NewServer(cfg, store, q, slog.New(slog.NewTextHandler(io.Discard, nil)))

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Serve(ctx, lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn), q, store
}

func TestSubmitOverGRPC(t *testing.T) {
	client, q, _ := startTestServer(t)

	partial := 2
	id, err := client.Submit(context.Background(), pipeline.Request{Catalog: "night.cat", Shifts: []float64{30, 30}, PartialLen: &partial})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(q.jobs) != 1 || q.jobs[0].ID != id {
		t.Fatalf("expected job %s queued, got %+v", id, q.jobs)
	}
	if diff := cmp.Diff([]float64{30, 30}, q.jobs[0].Focus.Shifts); diff != "" {
		t.Fatalf("unexpected shifts (-want +got):\n%s", diff)
	}
	if q.jobs[0].Focus.PartialLen != 2 {
		t.Fatalf("expected partial length 2, got %d", q.jobs[0].Focus.PartialLen)
	}

	_, err = client.Submit(context.Background(), pipeline.Request{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}

	q.err = errors.New("job queue is full")
	_, err = client.Submit(context.Background(), pipeline.Request{Catalog: "night.cat"})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

func TestGetRunOverGRPC(t *testing.T) {
	client, _, store := startTestServer(t)

	if err := store.RecordRunQueued(storage.RunRecord{ID: "run-1", JobType: "focus", Status: "queued", CatalogPath: "a.cat", Target: 15}); err != nil {
		t.Fatalf("RecordRunQueued: %v", err)
	}
	if err := store.RecordRunResult("run-1", "shortfall", 4, map[string]any{"shortfall": "only 4 sequences found, 15 required"}, ""); err != nil {
		t.Fatalf("RecordRunResult: %v", err)
	}

	got, err := client.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	run, _ := got["run"].(map[string]any)
	if run["status"] != "shortfall" || run["sequences"] != float64(4) || run["catalog_path"] != "a.cat" {
		t.Fatalf("unexpected run %v", run)
	}
	meta, _ := got["meta"].(map[string]any)
	if meta["shortfall"] != "only 4 sequences found, 15 required" {
		t.Fatalf("unexpected meta %v", meta)
	}

	if _, err := client.GetRun(context.Background(), "missing"); status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := client.GetRun(context.Background(), ""); status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}
