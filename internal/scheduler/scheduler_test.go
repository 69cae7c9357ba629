package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddRejectsBadSpec(t *testing.T) {
	s := New(nil)
	if err := s.Add("bad", "every tuesday", func(context.Context) (int64, error) { return 0, nil }); err == nil {
		t.Fatal("bad spec accepted")
	}
	if err := s.Add("ok", "@every 1h", func(context.Context) (int64, error) { return 0, nil }); err != nil {
		t.Fatal(err)
	}
	if s.Len() != 1 {
		t.Fatalf("len = %d", s.Len())
	}
}

func TestRunPassesDeadlineAndSurvivesErrors(t *testing.T) {
	s := New(nil)
	var calls atomic.Int32
	s.run("sweep", func(ctx context.Context) (int64, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("job context has no deadline")
		}
		calls.Add(1)
		return 3, nil
	})
	s.run("broken", func(context.Context) (int64, error) {
		calls.Add(1)
		return 0, errors.New("boom")
	})
	if calls.Load() != 2 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestStartStop(t *testing.T) {
	s := New(nil)
	ran := make(chan struct{}, 1)
	if err := s.Add("tick", "@every 1s", func(context.Context) (int64, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return 0, nil
	}); err != nil {
		t.Fatal(err)
	}
	s.Start()
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("job never ran")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
