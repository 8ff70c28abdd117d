package tal

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nyiyui.ca/hato/kirikae/notify"
	"nyiyui.ca/hato/kirikae/tal/layout"
)

// BoardConf configures a Board.
type BoardConf struct {
	Comment  string
	Topology Topology
	Resolver ResolverConf
	// Model, if not nil, receives every change to a switch.
	Model *Model
}

// Board owns the switches on one topology.
// All methods are safe to call concurrently, but topology edits must not happen during a call.
type Board struct {
	comment    string
	topo       Topology
	conf       ResolverConf
	model      *Model
	lock       sync.Mutex
	switches   map[uuid.UUID]*switchEntry
	byIncoming map[incomingKey]uuid.UUID
	events     *notify.Multiplexer[SwitchEvent]
	eventsS    *notify.MultiplexerSender[SwitchEvent]
}

type incomingKey struct {
	from, to layout.Node
}

func keyOf(e layout.Edge) incomingKey {
	return incomingKey{e.From, e.To}
}

type switchEntry struct {
	id        uuid.UUID
	comment   string
	point     SwitchPoint
	state     SwitchState
	automatic bool
	locked    bool

	policyName string
	policy     AutomationPolicy

	exits        ExitSet
	exitsVersion uint64
	exitsValid   bool
}

func (s *switchEntry) data() SwitchData {
	return SwitchData{
		Comment:   s.comment,
		Incoming:  s.point.Incoming,
		State:     s.state,
		Automatic: s.automatic,
		Locked:    s.locked,
		Policy:    s.policyName,
	}
}

func NewBoard(conf BoardConf) *Board {
	b := &Board{
		comment:    conf.Comment,
		topo:       conf.Topology,
		conf:       conf.Resolver.WithDefaults(),
		model:      conf.Model,
		switches:   map[uuid.UUID]*switchEntry{},
		byIncoming: map[incomingKey]uuid.UUID{},
	}
	b.eventsS, b.events = notify.NewMultiplexerSender[SwitchEvent](conf.Comment)
	return b
}

// Events returns the multiplexer all SwitchEvents are sent on.
func (b *Board) Events() *notify.Multiplexer[SwitchEvent] {
	return b.events
}

func (b *Board) Topology() Topology {
	return b.topo
}

func (b *Board) ResolverConf() ResolverConf {
	return b.conf
}

// SwitchConf describes a switch to designate.
type SwitchConf struct {
	// ID is generated if zero.
	ID        uuid.UUID
	Comment   string
	Incoming  layout.Edge
	State     SwitchState
	Automatic bool
	Locked    bool
	// Policy is the name of the automation policy (see NewPolicy).
	Policy string
}

// Designate makes the node at the end of conf.Incoming a switch for trains arriving along conf.Incoming.
// Exits are not resolved until they are first needed.
func (b *Board) Designate(conf SwitchConf) (uuid.UUID, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	id := conf.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	if _, ok := b.switches[id]; ok {
		return uuid.Nil, fmt.Errorf("%s: %w", id, ErrDuplicateSwitch)
	}
	if other, ok := b.byIncoming[keyOf(conf.Incoming)]; ok {
		return uuid.Nil, fmt.Errorf("%s already designated as %s: %w", conf.Incoming, other, ErrDuplicateSwitch)
	}
	if conf.State < 0 || conf.State >= numSwitchStates {
		return uuid.Nil, fmt.Errorf("invalid state %d", int(conf.State))
	}
	paths, _ := b.topo.(PathFinder)
	policy, err := NewPolicy(conf.Policy, paths, b.conf)
	if err != nil {
		return uuid.Nil, err
	}
	s := &switchEntry{
		id:         id,
		comment:    conf.Comment,
		point:      SwitchPoint{Incoming: conf.Incoming},
		state:      conf.State,
		automatic:  conf.Automatic,
		locked:     conf.Locked,
		policyName: conf.Policy,
		policy:     policy,
	}
	b.switches[id] = s
	b.byIncoming[keyOf(conf.Incoming)] = id
	zap.S().Infow("designated switch",
		"board", b.comment,
		"id", id,
		"comment", conf.Comment,
		"point", s.point)
	b.persist(s)
	b.emit(s, SwitchEventDesignated)
	return id, nil
}

// Remove removes a switch. Its exit edges keep whatever enabled state they had.
func (b *Board) Remove(id uuid.UUID) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	s, err := b.get(id)
	if err != nil {
		return err
	}
	delete(b.switches, id)
	delete(b.byIncoming, keyOf(s.point.Incoming))
	if b.model != nil {
		if err := b.model.Delete(id); err != nil {
			zap.S().Errorw("delete switch failed", "id", id, "err", err)
		}
	}
	b.emit(s, SwitchEventRemoved)
	return nil
}

// Restore designates every switch stored in the board's Model.
// Switches already on the board are skipped.
func (b *Board) Restore() error {
	if b.model == nil {
		return nil
	}
	all, err := b.model.LoadAll()
	if err != nil {
		return err
	}
	ids := make([]uuid.UUID, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		sd := all[id]
		_, err := b.Designate(SwitchConf{
			ID:        id,
			Comment:   sd.Comment,
			Incoming:  sd.Incoming,
			State:     sd.State,
			Automatic: sd.Automatic,
			Locked:    sd.Locked,
			Policy:    sd.Policy,
		})
		if err != nil {
			zap.S().Warnw("restore switch failed", "id", id, "err", err)
		}
	}
	return nil
}

// Has reports whether id is on the board.
func (b *Board) Has(id uuid.UUID) bool {
	b.lock.Lock()
	defer b.lock.Unlock()
	_, ok := b.switches[id]
	return ok
}

// SwitchAt returns the switch for trains arriving along incoming.
func (b *Board) SwitchAt(incoming layout.Edge) (uuid.UUID, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	id, ok := b.byIncoming[keyOf(incoming)]
	return id, ok
}

// Invalidate drops all cached exit sets.
// This is only needed for topologies that don't change Version when edited.
func (b *Board) Invalidate() {
	b.lock.Lock()
	defer b.lock.Unlock()
	for _, s := range b.switches {
		s.exitsValid = false
	}
}

// AvailableExits returns the current exits of a switch.
func (b *Board) AvailableExits(id uuid.UUID) (ExitSet, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	s, err := b.get(id)
	if err != nil {
		return nil, err
	}
	exits, err := b.refreshExits(s)
	if err != nil {
		return nil, err
	}
	return exits.Clone(), nil
}

// ActiveExit returns the exit a train arriving now would take.
// For manual switches, an invalid state is first normalized to the first valid state.
func (b *Board) ActiveExit(id uuid.UUID, ctx TraversalContext) (layout.Node, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	s, err := b.get(id)
	if err != nil {
		return layout.Node{}, err
	}
	return b.activeExit(s, ctx)
}

// Traverse is ActiveExit for a train actually passing the switch.
// Automatic switches' policies are told about the traversal.
func (b *Board) Traverse(id uuid.UUID, ctx TraversalContext) (layout.Node, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	s, err := b.get(id)
	if err != nil {
		return layout.Node{}, err
	}
	exit, err := b.activeExit(s, ctx)
	if err != nil {
		return layout.Node{}, err
	}
	if s.automatic {
		if o, ok := s.policy.(TraversalObserver); ok {
			o.Traversed(s.point, s.exits, exit)
		}
	}
	b.emitExit(s, SwitchEventTraversed, exit, ctx.Train)
	return exit, nil
}

// RequestCycle moves a manual switch to its next valid state.
// changed is false (and the state is returned unchanged) if the switch is locked or automatic.
func (b *Board) RequestCycle(id uuid.UUID, trigger Trigger) (state SwitchState, changed bool, err error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	s, err := b.get(id)
	if err != nil {
		return 0, false, err
	}
	if s.locked || s.automatic {
		zap.S().Debugw("cycle rejected",
			"id", id,
			"trigger", trigger,
			"locked", s.locked,
			"automatic", s.automatic)
		return s.state, false, nil
	}
	exits, err := b.refreshExits(s)
	if err != nil {
		return s.state, false, err
	}
	cur, err := NormalizeState(s.state, exits)
	if err != nil {
		return s.state, false, b.noExit(s, err)
	}
	next := NextState(cur, exits)
	if next == s.state {
		return s.state, false, nil
	}
	zap.S().Debugw("cycled",
		"id", id,
		"trigger", trigger,
		"from", s.state,
		"to", next)
	s.state = next
	exit := exits[next.Class()]
	b.applyEdges(s, exits, exit)
	b.persist(s)
	b.emit(s, SwitchEventCycled)
	return next, true, nil
}

// SetLocked sets whether a switch ignores cycle requests (e.g. because it is powered).
func (b *Board) SetLocked(id uuid.UUID, locked bool) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	s, err := b.get(id)
	if err != nil {
		return err
	}
	if s.locked == locked {
		return nil
	}
	s.locked = locked
	b.persist(s)
	if locked {
		b.emit(s, SwitchEventLocked)
	} else {
		b.emit(s, SwitchEventUnlocked)
	}
	return nil
}

// SetAutomatic switches between manual state and the switch's automation policy.
func (b *Board) SetAutomatic(id uuid.UUID, automatic bool) error {
	b.lock.Lock()
	defer b.lock.Unlock()
	s, err := b.get(id)
	if err != nil {
		return err
	}
	if s.automatic == automatic {
		return nil
	}
	s.automatic = automatic
	b.persist(s)
	b.emit(s, SwitchEventAutomatic)
	return nil
}

// SwitchInfo is a snapshot of a switch.
type SwitchInfo struct {
	ID        uuid.UUID    `json:"id"`
	Comment   string       `json:"comment"`
	Incoming  layout.Edge  `json:"incoming"`
	State     SwitchState  `json:"state"`
	Automatic bool         `json:"automatic"`
	Locked    bool         `json:"locked"`
	Policy    string       `json:"policy,omitempty"`
	Exits     ExitSet      `json:"exits,omitempty"`
	Active    *layout.Node `json:"active,omitempty"`
	Overlay   Overlay      `json:"overlay"`
	// Err is why Exits or Active is missing.
	Err string `json:"err,omitempty"`
}

func (b *Board) Info(id uuid.UUID) (SwitchInfo, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	s, err := b.get(id)
	if err != nil {
		return SwitchInfo{}, err
	}
	return b.info(s), nil
}

// List returns snapshots of all switches, ordered by comment and then ID.
func (b *Board) List() []SwitchInfo {
	b.lock.Lock()
	defer b.lock.Unlock()
	infos := make([]SwitchInfo, 0, len(b.switches))
	for _, s := range b.switches {
		infos = append(infos, b.info(s))
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Comment != infos[j].Comment {
			return infos[i].Comment < infos[j].Comment
		}
		return infos[i].ID.String() < infos[j].ID.String()
	})
	return infos
}

// info doesn't change the switch: it doesn't save a normalized state or touch edges.
func (b *Board) info(s *switchEntry) SwitchInfo {
	si := SwitchInfo{
		ID:        s.id,
		Comment:   s.comment,
		Incoming:  s.point.Incoming,
		State:     s.state,
		Automatic: s.automatic,
		Locked:    s.locked,
		Policy:    s.policyName,
		Overlay:   OverlayNone,
	}
	exits, err := b.refreshExits(s)
	if err != nil {
		si.Err = err.Error()
		return si
	}
	si.Exits = exits.Clone()
	if exits.Len() == 0 {
		si.Err = b.noExit(s, &NoExitAvailableError{}).Error()
		return si
	}
	state, _ := NormalizeState(s.state, exits)
	si.State = state
	si.Overlay = OverlayFor(exits, state)
	var active layout.Node
	if s.automatic {
		active, err = s.policy.SelectExit(s.point, exits, TraversalContext{})
		if err != nil {
			si.Err = fmt.Sprintf("switch %s: policy %s: %s", s.id, s.policyName, err)
			return si
		}
		if !exits.Contains(active) {
			si.Err = fmt.Sprintf("switch %s: policy %s selected %s, which is not an exit", s.id, s.policyName, active)
			return si
		}
	} else {
		active = exits[state.Class()]
	}
	si.Active = &active
	return si
}

// get must be called with lock held.
func (b *Board) get(id uuid.UUID) (*switchEntry, error) {
	s, ok := b.switches[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownSwitch)
	}
	return s, nil
}

// refreshExits recomputes the exits if the topology changed since they were last computed.
func (b *Board) refreshExits(s *switchEntry) (ExitSet, error) {
	v := b.topo.Version()
	if s.exitsValid && s.exitsVersion == v {
		return s.exits, nil
	}
	exits, err := ResolveExits(b.topo, s.point, b.conf)
	if err != nil {
		s.exitsValid = false
		return nil, fmt.Errorf("switch %s: %w", s.id, err)
	}
	s.exits = exits
	s.exitsVersion = v
	s.exitsValid = true
	zap.S().Debugw("resolved exits",
		"id", s.id,
		"version", v,
		"exits", exits)
	return exits, nil
}

func (b *Board) activeExit(s *switchEntry, ctx TraversalContext) (layout.Node, error) {
	exits, err := b.refreshExits(s)
	if err != nil {
		return layout.Node{}, err
	}
	if exits.Len() == 0 {
		return layout.Node{}, b.noExit(s, &NoExitAvailableError{})
	}
	var exit layout.Node
	if s.automatic {
		exit, err = s.policy.SelectExit(s.point, exits, ctx)
		if err != nil {
			return layout.Node{}, fmt.Errorf("switch %s: policy %s: %w", s.id, s.policyName, err)
		}
		if !exits.Contains(exit) {
			return layout.Node{}, fmt.Errorf("switch %s: policy %s selected %s, which is not an exit", s.id, s.policyName, exit)
		}
	} else {
		state, err := NormalizeState(s.state, exits)
		if err != nil {
			return layout.Node{}, b.noExit(s, err)
		}
		if state != s.state {
			zap.S().Infow("normalized state",
				"id", s.id,
				"from", s.state,
				"to", state,
				"exits", exits)
			s.state = state
			b.persist(s)
			b.emit(s, SwitchEventNormalized)
		}
		exit = exits[state.Class()]
	}
	b.applyEdges(s, exits, exit)
	return exit, nil
}

func (b *Board) noExit(s *switchEntry, err error) error {
	if ne, ok := err.(*NoExitAvailableError); ok {
		ne.At = s.point.Node()
	}
	return fmt.Errorf("switch %s: %w", s.id, err)
}

// applyEdges enables the edge to exit and disables the edges to the other exits.
func (b *Board) applyEdges(s *switchEntry, exits ExitSet, exit layout.Node) {
	es, ok := b.topo.(EdgeSwitcher)
	if !ok {
		return
	}
	at := s.point.Node()
	for _, n := range exits.Nodes() {
		enabled := n == exit
		if b.topo.IsEdgeEnabled(layout.Edge{From: at, To: n}) == enabled {
			continue
		}
		if err := es.SetEdgeEnabled(at, n, enabled); err != nil {
			zap.S().Errorw("set edge enabled failed",
				"id", s.id,
				"to", n,
				"enabled", enabled,
				"err", err)
		}
	}
}

func (b *Board) persist(s *switchEntry) {
	if b.model == nil {
		return
	}
	if err := b.model.Save(s.id, s.data()); err != nil {
		zap.S().Errorw("save switch failed", "id", s.id, "err", err)
	}
}

func (b *Board) emit(s *switchEntry, kind SwitchEventKind) {
	b.eventsS.Send(SwitchEvent{
		ID:        s.id,
		Kind:      kind,
		State:     s.state,
		Automatic: s.automatic,
		Locked:    s.locked,
	})
}

func (b *Board) emitExit(s *switchEntry, kind SwitchEventKind, exit layout.Node, train uuid.UUID) {
	b.eventsS.Send(SwitchEvent{
		ID:        s.id,
		Kind:      kind,
		State:     s.state,
		Automatic: s.automatic,
		Locked:    s.locked,
		Exit:      &exit,
		Train:     train,
	})
}
