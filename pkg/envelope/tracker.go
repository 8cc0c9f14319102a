package envelope

import (
	"sync"

	"github.com/rhuss/duplex/pkg/api"
	"github.com/rhuss/duplex/pkg/debug"
)

// DefaultClosedHistory is the number of closed ids a Tracker remembers.
const DefaultClosedHistory = 1024

// Tracker enforces the per-id message sequence of one connection. Open ids
// are tracked until their terminal response; closed ids are remembered in a
// bounded FIFO so late messages for them are rejected. Once an id falls out
// of the history it may be reused by a new request.
type Tracker struct {
	mu      sync.Mutex
	phases  map[string]api.ExchangePhase
	closed  map[string]struct{}
	order   []string
	history int
}

// NewTracker creates a Tracker remembering up to history closed ids.
// A non-positive history selects DefaultClosedHistory.
func NewTracker(history int) *Tracker {
	if history <= 0 {
		history = DefaultClosedHistory
	}
	return &Tracker{
		phases:  make(map[string]api.ExchangePhase),
		closed:  make(map[string]struct{}),
		history: history,
	}
}

// Observe records a message of the given kind for id. It returns an
// envelope error, and leaves the state unchanged, when the message is out of
// sequence.
func (t *Tracker) Observe(id string, kind api.MessageKind) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.phaseLocked(id)
	next, err := api.NextExchangePhase(from, kind)
	if err != nil {
		debug.Log(debug.Envelope, "sequence violation", "id", id, "message", kind, "phase", from)
		return err
	}

	if next == api.PhaseClosed {
		delete(t.phases, id)
		t.closeLocked(id)
		return nil
	}
	t.phases[id] = next
	return nil
}

// Phase returns the current phase of id.
func (t *Tracker) Phase(id string) api.ExchangePhase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phaseLocked(id)
}

// Open returns the number of ids awaiting a terminal response.
func (t *Tracker) Open() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.phases)
}

func (t *Tracker) phaseLocked(id string) api.ExchangePhase {
	if p, ok := t.phases[id]; ok {
		return p
	}
	if _, ok := t.closed[id]; ok {
		return api.PhaseClosed
	}
	return api.PhaseIdle
}

func (t *Tracker) closeLocked(id string) {
	t.closed[id] = struct{}{}
	t.order = append(t.order, id)
	for len(t.order) > t.history {
		delete(t.closed, t.order[0])
		t.order = t.order[1:]
	}
}
