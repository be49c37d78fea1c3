package async

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/efddrsn/cartorio-AI/internal/common"
)

func TestWorkerQueueRunsEveryJob(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
		rids []string
	)
	h := HandlerFunc(func(ctx context.Context, job Job) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, job.Path)
		rids = append(rids, common.RequestIDFromContext(ctx))
		if job.Path == "b.pdf" {
			return errors.New("boom")
		}
		return nil
	})
	q := NewWorkerQueue(h, nil, WithWorkers(3), WithQueueSize(1))
	for _, p := range []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf"} {
		if err := q.Enqueue(context.Background(), Job{Path: p, TraceID: "rid-" + p}); err != nil {
			t.Fatalf("Enqueue(%s): %v", p, err)
		}
	}
	q.Shutdown(context.Background())

	sort.Strings(seen)
	sort.Strings(rids)
	if len(seen) != 4 || seen[0] != "a.pdf" || seen[3] != "d.pdf" {
		t.Fatalf("seen = %v", seen)
	}
	if rids[0] != "rid-a.pdf" {
		t.Fatalf("request ids = %v", rids)
	}
}

func TestWorkerQueueEnqueueAfterShutdown(t *testing.T) {
	q := NewWorkerQueue(HandlerFunc(func(context.Context, Job) error { return nil }), nil)
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())
	if err := q.Enqueue(context.Background(), Job{Path: "x.pdf"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v", err)
	}
}

func TestWorkerQueueBackpressureHonorsContext(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	h := HandlerFunc(func(ctx context.Context, job Job) error {
		started <- struct{}{}
		<-release
		return nil
	})
	q := NewWorkerQueue(h, nil, WithWorkers(1), WithQueueSize(1))
	if err := q.Enqueue(context.Background(), Job{Path: "1.pdf"}); err != nil {
		t.Fatal(err)
	}
	<-started
	if err := q.Enqueue(context.Background(), Job{Path: "2.pdf"}); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Enqueue(ctx, Job{Path: "3.pdf"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	close(release)
	q.Shutdown(context.Background())
}

func TestWorkerQueueTimeoutAndPanic(t *testing.T) {
	var timedOut, after atomic.Bool
	h := HandlerFunc(func(ctx context.Context, job Job) error {
		switch job.Path {
		case "panic.pdf":
			panic("bad page")
		case "slow.pdf":
			<-ctx.Done()
			timedOut.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		default:
			after.Store(true)
		}
		return nil
	})
	q := NewWorkerQueue(h, nil, WithWorkers(1), WithProcessTimeout(10*time.Millisecond))
	for _, p := range []string{"panic.pdf", "slow.pdf", "ok.pdf"} {
		if err := q.Enqueue(context.Background(), Job{Path: p}); err != nil {
			t.Fatal(err)
		}
	}
	q.Shutdown(context.Background())
	if !timedOut.Load() {
		t.Fatal("slow job did not see its deadline")
	}
	if !after.Load() {
		t.Fatal("worker died after panic")
	}
}
