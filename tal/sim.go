package tal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nyiyui.ca/hato/kirikae/notify"
	"nyiyui.ca/hato/kirikae/tal/layout"
)

// Train is a train in a Simulator. It last moved along Prev→At.
type Train struct {
	ID      uuid.UUID
	Comment string
	Prev    layout.Node
	At      layout.Node
	// Destination, if not nil, is where the train stops.
	Destination *layout.Node
	Stopped     bool
	StopReason  string
}

func (t Train) String() string {
	if t.Stopped {
		return fmt.Sprintf("%s %s at %s (stopped: %s)", t.ID, t.Comment, t.At, t.StopReason)
	}
	return fmt.Sprintf("%s %s at %s from %s", t.ID, t.Comment, t.At, t.Prev)
}

// Simulator moves trains one edge per tick, letting the Board decide at switches.
type Simulator struct {
	Comment string
	b       *Board
	lock    sync.Mutex
	trains  []Train
	events  *notify.Multiplexer[TrainEvent]
	eventsS *notify.MultiplexerSender[TrainEvent]
}

func NewSimulator(comment string, b *Board) *Simulator {
	s := &Simulator{
		Comment: comment,
		b:       b,
	}
	s.eventsS, s.events = notify.NewMultiplexerSender[TrainEvent](comment)
	return s
}

func (s *Simulator) Events() *notify.Multiplexer[TrainEvent] {
	return s.events
}

// AddTrain adds a train that has just moved along t.Prev→t.At. An ID is generated if t.ID is zero.
func (s *Simulator) AddTrain(t Train) (uuid.UUID, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	topo := s.b.Topology()
	found := false
	for _, e := range topo.OutgoingEdges(t.Prev) {
		if e.To == t.At {
			found = true
			break
		}
	}
	if !found {
		return uuid.Nil, fmt.Errorf("train %s: no edge %s→%s", t.Comment, t.Prev, t.At)
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	s.trains = append(s.trains, t)
	return t.ID, nil
}

// Trains returns a copy of all trains.
func (s *Simulator) Trains() []Train {
	s.lock.Lock()
	defer s.lock.Unlock()
	trains := make([]Train, len(s.trains))
	copy(trains, s.trains)
	return trains
}

// Tick moves every moving train by one edge.
func (s *Simulator) Tick() {
	s.lock.Lock()
	defer s.lock.Unlock()
	for i := range s.trains {
		t := &s.trains[i]
		if t.Stopped {
			continue
		}
		s.step(t)
	}
}

func (s *Simulator) step(t *Train) {
	topo := s.b.Topology()
	incoming := layout.Edge{From: t.Prev, To: t.At}
	var next layout.Node
	var switchID uuid.UUID
	if id, ok := s.b.SwitchAt(incoming); ok {
		exit, err := s.b.Traverse(id, TraversalContext{Train: t.ID, Destination: t.Destination})
		if err != nil {
			s.stop(t, fmt.Sprintf("switch impassable: %s", err))
			return
		}
		next, switchID = exit, id
	} else {
		exits, err := ClassifyExits(topo, SwitchPoint{Incoming: incoming}, s.b.ResolverConf())
		if err != nil {
			var sre *StaleReferenceError
			if errors.As(err, &sre) {
				s.stop(t, fmt.Sprintf("track removed: %s", err))
			} else {
				s.stop(t, err.Error())
			}
			return
		}
		found := false
		for _, e := range exits {
			if topo.IsEdgeEnabled(e.Edge) {
				next, found = e.Edge.To, true
				break
			}
		}
		if !found {
			// end of the line; turn back
			if !topo.IsEdgeEnabled(incoming.Reverse()) {
				s.stop(t, "dead end")
				return
			}
			next = t.Prev
		}
	}
	t.Prev, t.At = t.At, next
	e := TrainEvent{
		Train:  t.ID,
		Edge:   layout.Edge{From: t.Prev, To: t.At},
		Switch: switchID,
	}
	if t.Destination != nil && *t.Destination == t.At {
		t.Stopped = true
		t.StopReason = "arrived"
		e.Stopped = true
		e.Reason = t.StopReason
	}
	zap.S().Debugw("train moved", "train", t.ID, "edge", e.Edge, "switch", switchID)
	s.eventsS.Send(e)
}

func (s *Simulator) stop(t *Train, reason string) {
	t.Stopped = true
	t.StopReason = reason
	zap.S().Warnw("train stopped", "train", t.ID, "at", t.At, "reason", reason)
	s.eventsS.Send(TrainEvent{
		Train:   t.ID,
		Edge:    layout.Edge{From: t.Prev, To: t.At},
		Stopped: true,
		Reason:  reason,
	})
}

// Run ticks every interval until ctx is done.
func (s *Simulator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}
