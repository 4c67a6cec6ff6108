package loop_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jroosing/hydradns/internal/loop"
	"github.com/stretchr/testify/assert"
)

func TestLoop_RunsPostedTasks(t *testing.T) {
	l := loop.New(4, 8, nil)
	l.Run(context.Background())
	defer l.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := 0

	for range 10 {
		wg.Add(1)
		l.Post(func() {
			defer wg.Done()
			mu.Lock()
			seen++
			mu.Unlock()
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tasks")
	}

	assert.Equal(t, 10, seen)
}

func TestLoop_PanicInTaskDoesNotKillWorker(t *testing.T) {
	l := loop.New(1, 4, nil)
	l.Run(context.Background())
	defer l.Close()

	l.Post(func() { panic("boom") })

	var wg sync.WaitGroup
	wg.Add(1)
	l.Post(func() { wg.Done() })

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not recover from panic")
	}
}
