package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/jordigilh/agent-sre/pkg/models"
)

// catchupLimit bounds how many missed transitions a single Since call
// returns, grounded on the teacher's pkg/events.catchupLimit (200).
const catchupLimit = 200

// Transition is one recorded Step change for a correlation ID, numbered by
// a per-correlation-ID monotonic sequence so a reconnecting caller can ask
// "everything after the last one I saw".
type Transition struct {
	Seq   int
	State *models.WorkflowState
}

// VolatileCheckpoints is an in-process CheckpointStore, suitable for a
// single-replica deployment or tests. Production deployments should back
// CheckpointStore with the durable memory.Store instead (a correlation_id
// keyed record survives process restarts the way the spec's
// crash-resumable contract requires). It additionally retains a bounded
// history of transitions per correlation ID, so a client that disconnects
// mid-workflow and reconnects can replay what it missed — the teacher's
// pkg/events catch-up adapter, adapted from a channel/event-ID pair to a
// correlation-ID/step-sequence pair.
type VolatileCheckpoints struct {
	mu      sync.RWMutex
	byCID   map[string]*models.WorkflowState
	history map[string][]Transition
}

// NewVolatileCheckpoints builds an empty in-process checkpoint store.
func NewVolatileCheckpoints() *VolatileCheckpoints {
	return &VolatileCheckpoints{
		byCID:   make(map[string]*models.WorkflowState),
		history: make(map[string][]Transition),
	}
}

func (c *VolatileCheckpoints) Save(ctx context.Context, state *models.WorkflowState) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byCID[state.CorrelationID] = state.Clone()

	hist := c.history[state.CorrelationID]
	seq := 1
	if len(hist) > 0 {
		seq = hist[len(hist)-1].Seq + 1
	}
	hist = append(hist, Transition{Seq: seq, State: state.Clone()})
	if len(hist) > catchupLimit {
		hist = hist[len(hist)-catchupLimit:]
	}
	c.history[state.CorrelationID] = hist

	return nil
}

func (c *VolatileCheckpoints) Load(ctx context.Context, correlationID string) (*models.WorkflowState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	state, ok := c.byCID[correlationID]
	if !ok {
		return nil, fmt.Errorf("workflow: no checkpoint for correlation_id %q", correlationID)
	}
	return state.Clone(), nil
}

// Since returns every recorded transition for correlationID with Seq >
// sinceSeq, oldest first, so a reconnecting caller can replay exactly the
// transitions it missed. Passing sinceSeq=0 returns the full retained
// history (capped at catchupLimit transitions — older ones have already
// aged out of the in-process ring).
func (c *VolatileCheckpoints) Since(ctx context.Context, correlationID string, sinceSeq int) ([]Transition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hist, ok := c.history[correlationID]
	if !ok {
		return nil, fmt.Errorf("workflow: no checkpoint history for correlation_id %q", correlationID)
	}

	var out []Transition
	for _, t := range hist {
		if t.Seq > sinceSeq {
			out = append(out, t)
		}
	}
	return out, nil
}

var _ CheckpointStore = (*VolatileCheckpoints)(nil)
