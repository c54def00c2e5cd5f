package relay

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BioHazard786/roomrelay/internal/protocol"
)

func msgN(i int) *protocol.Message {
	return protocol.PeerJoined(fmt.Sprintf("p%d", i))
}

func TestOutbox_FIFOAcrossGrowth(t *testing.T) {
	o := NewOutbox(2, 0)

	for i := 0; i < 50; i++ {
		if err := o.Push(msgN(i)); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}
	if o.Cap() <= 2 {
		t.Fatalf("Cap()=%d, expected growth", o.Cap())
	}

	msgs, open := o.Drain(0)
	if !open {
		t.Fatalf("Drain reported closed")
	}
	if len(msgs) != 50 {
		t.Fatalf("drained %d, want 50", len(msgs))
	}
	for i, m := range msgs {
		if m.PeerID != fmt.Sprintf("p%d", i) {
			t.Fatalf("msgs[%d]=%s, out of order", i, m.PeerID)
		}
	}
}

func TestOutbox_WrappedGrowthKeepsOrder(t *testing.T) {
	o := NewOutbox(10, 0)
	next := 0
	for i := 0; i < 5; i++ {
		_ = o.Push(msgN(next))
		next++
	}
	// Advance head so the ring wraps on the following pushes.
	if msgs, _ := o.Drain(4); len(msgs) != 4 {
		t.Fatalf("drained %d, want 4", len(msgs))
	}
	for i := 0; i < 20; i++ {
		_ = o.Push(msgN(next))
		next++
	}

	msgs, _ := o.Drain(0)
	for i, m := range msgs {
		if want := fmt.Sprintf("p%d", i+4); m.PeerID != want {
			t.Fatalf("msgs[%d]=%s, want %s", i, m.PeerID, want)
		}
	}
}

func TestOutbox_Limit(t *testing.T) {
	o := NewOutbox(1, 3)
	for i := 0; i < 3; i++ {
		if err := o.Push(msgN(i)); err != nil {
			t.Fatalf("Push(%d): %v", i, err)
		}
	}
	if err := o.Push(msgN(3)); !errors.Is(err, ErrOutboxFull) {
		t.Fatalf("err=%v, want ErrOutboxFull", err)
	}
	if o.Len() != 3 {
		t.Fatalf("Len()=%d, want 3", o.Len())
	}
}

func TestOutbox_DrainBatchResignals(t *testing.T) {
	o := NewOutbox(4, 0)
	for i := 0; i < 5; i++ {
		_ = o.Push(msgN(i))
	}
	<-o.Ready()

	msgs, _ := o.Drain(2)
	if len(msgs) != 2 {
		t.Fatalf("drained %d, want 2", len(msgs))
	}
	select {
	case <-o.Ready():
	default:
		t.Fatalf("leftover messages did not re-signal Ready")
	}
}

func TestOutbox_CloseDrainsThenReportsClosed(t *testing.T) {
	o := NewOutbox(4, 0)
	_ = o.Push(msgN(0))
	o.Close()

	if err := o.Push(msgN(1)); !errors.Is(err, ErrOutboxClosed) {
		t.Fatalf("err=%v, want ErrOutboxClosed", err)
	}

	msgs, open := o.Drain(0)
	if len(msgs) != 1 || !open {
		t.Fatalf("first drain got %d msgs open=%v", len(msgs), open)
	}
	msgs, open = o.Drain(0)
	if len(msgs) != 0 || open {
		t.Fatalf("second drain got %d msgs open=%v, want 0 false", len(msgs), open)
	}
	o.Close()
}

func TestOutbox_ConcurrentProducerConsumer(t *testing.T) {
	o := NewOutbox(1, 0)
	const n = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			if err := o.Push(msgN(i)); err != nil {
				t.Errorf("Push(%d): %v", i, err)
				return
			}
		}
		o.Close()
	}()

	received := 0
	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-o.Ready():
		case <-deadline:
			t.Fatalf("timed out after %d messages", received)
		}
		msgs, open := o.Drain(drainBatch)
		for _, m := range msgs {
			if want := fmt.Sprintf("p%d", received); m.PeerID != want {
				t.Fatalf("got %s, want %s", m.PeerID, want)
			}
			received++
		}
		if !open {
			break
		}
	}
	wg.Wait()

	if received != n {
		t.Fatalf("received %d, want %d", received, n)
	}
}
