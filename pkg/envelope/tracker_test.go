package envelope

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rhuss/duplex/pkg/api"
)

func TestTrackerStreamedExchange(t *testing.T) {
	tr := NewTracker(0)
	steps := []api.MessageKind{
		api.MessageRequest,
		api.MessagePartial,
		api.MessagePartial,
		api.MessageTerminal,
	}
	for i, kind := range steps {
		if err := tr.Observe("z", kind); err != nil {
			t.Fatalf("step %d (%s): %v", i, kind, err)
		}
	}
	if tr.Phase("z") != api.PhaseClosed {
		t.Errorf("Phase = %q, want closed", tr.Phase("z"))
	}

	for _, kind := range []api.MessageKind{api.MessagePartial, api.MessageTerminal, api.MessageRequest} {
		err := tr.Observe("z", kind)
		if !api.IsKind(err, api.ErrorKindEnvelope) {
			t.Errorf("%s after terminal: err = %v, want envelope error", kind, err)
		}
	}
	if tr.Open() != 0 {
		t.Errorf("Open = %d, want 0", tr.Open())
	}
}

func TestTrackerRejectsOutOfSequence(t *testing.T) {
	tr := NewTracker(0)
	if err := tr.Observe("a", api.MessageTerminal); err == nil {
		t.Error("response without request accepted")
	}
	if err := tr.Observe("a", api.MessageRequest); err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := tr.Observe("a", api.MessageRequest); err == nil {
		t.Error("duplicate request accepted while open")
	}
	if tr.Phase("a") != api.PhaseOpen {
		t.Errorf("Phase = %q, want open", tr.Phase("a"))
	}
}

func TestTrackerHistoryIsBounded(t *testing.T) {
	tr := NewTracker(2)
	for _, id := range []string{"1", "2", "3"} {
		_ = tr.Observe(id, api.MessageRequest)
		_ = tr.Observe(id, api.MessageTerminal)
	}
	if tr.Phase("1") != api.PhaseIdle {
		t.Errorf("oldest id still remembered: %q", tr.Phase("1"))
	}
	if tr.Phase("3") != api.PhaseClosed {
		t.Errorf("newest id forgotten: %q", tr.Phase("3"))
	}
	if err := tr.Observe("1", api.MessageRequest); err != nil {
		t.Errorf("evicted id could not be reused: %v", err)
	}
}

func TestTrackerConcurrentIDs(t *testing.T) {
	tr := NewTracker(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for _, kind := range []api.MessageKind{api.MessageRequest, api.MessagePartial, api.MessageTerminal} {
				if err := tr.Observe(id, kind); err != nil {
					t.Errorf("id %s: %v", id, err)
				}
			}
		}(fmt.Sprint(i))
	}
	wg.Wait()
	if tr.Open() != 0 {
		t.Errorf("Open = %d, want 0", tr.Open())
	}
}
