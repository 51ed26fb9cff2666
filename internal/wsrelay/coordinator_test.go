package wsrelay

import (
	"sync"
	"testing"
	"time"
)

func TestCoordinator_PostThenWait(t *testing.T) {
	c := NewCoordinator()
	c.Register("id-1")

	c.Post("id-1", InitiateReply{OK: true})

	reply, ok := c.Wait("id-1", time.Second)
	if !ok {
		t.Fatal("expected delivered reply")
	}
	if !reply.OK {
		t.Fatal("expected OK reply")
	}
}

func TestCoordinator_WaitTimesOut(t *testing.T) {
	c := NewCoordinator()
	c.Register("id-2")

	_, ok := c.Wait("id-2", 10*time.Millisecond)
	if ok {
		t.Fatal("expected timeout, got a delivered reply")
	}
}

func TestCoordinator_PostWithNoWaiterIsNoop(t *testing.T) {
	c := NewCoordinator()
	c.Post("ghost", InitiateReply{OK: true}) // must not panic or block
}

// TestCoordinator_ConcurrentStreamsDoNotSwapReplies is the regression test
// for the scenario a global FIFO queue fails: two concurrently opening
// streams must each receive their own reply, never the other's.
func TestCoordinator_ConcurrentStreamsDoNotSwapReplies(t *testing.T) {
	c := NewCoordinator()
	c.Register("x")
	c.Register("y")

	var wg sync.WaitGroup
	results := make(map[string]InitiateReply)
	var mu sync.Mutex

	wg.Add(2)
	go func() {
		defer wg.Done()
		reply, ok := c.Wait("x", time.Second)
		if !ok {
			t.Error("x did not receive a reply")
		}
		mu.Lock()
		results["x"] = reply
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		reply, ok := c.Wait("y", time.Second)
		if !ok {
			t.Error("y did not receive a reply")
		}
		mu.Lock()
		results["y"] = reply
		mu.Unlock()
	}()

	c.Post("y", InitiateReply{OK: false, Message: "refused"})
	c.Post("x", InitiateReply{OK: true})
	wg.Wait()

	if !results["x"].OK {
		t.Fatalf("x should have received its own OK reply, got %+v", results["x"])
	}
	if results["y"].OK || results["y"].Message != "refused" {
		t.Fatalf("y should have received its own failure reply, got %+v", results["y"])
	}
}
