package world

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/worldcore/internal/cell"
	"github.com/udisondev/worldcore/internal/model"
)

const cellMarkWords = cell.TotalCells * cell.TotalCells / 64

// cellMarks records which cells were visited during the current tick.
type cellMarks struct {
	words [cellMarkWords]atomic.Uint64
}

// testAndSet marks the cell and reports whether it was unmarked before.
func (c *cellMarks) testAndSet(id uint32) bool {
	bit := uint64(1) << (id % 64)
	return c.words[id/64].Or(bit)&bit == 0
}

func (c *cellMarks) isMarked(id uint32) bool {
	return c.words[id/64].Load()&(uint64(1)<<(id%64)) != 0
}

func (c *cellMarks) reset() {
	for i := range c.words {
		c.words[i].Store(0)
	}
}

// relocationActor runs at most one relocation-notification pass at a time.
type relocationActor struct {
	mu   sync.Mutex
	done chan struct{}
}

// post starts fn unless a previous pass is still running.
func (a *relocationActor) post(fn func()) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done != nil {
		select {
		case <-a.done:
		default:
			return false
		}
	}
	done := make(chan struct{})
	a.done = done
	go func() {
		defer close(done)
		fn()
	}()
	return true
}

// wait blocks until the running pass, if any, has finished.
func (a *relocationActor) wait() {
	a.mu.Lock()
	done := a.done
	a.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (m *Map) markChanged(guid model.GUID) {
	m.dirtyMu.Lock()
	m.dirty[guid] = struct{}{}
	m.dirtyMu.Unlock()
}

// MarkChanged queues an object for the end-of-tick update flush.
func (m *Map) MarkChanged(guid model.GUID) { m.markChanged(guid) }

// Update runs one tick of the map.
func (m *Map) Update(diff time.Duration) {
	start := time.Now()

	m.reloc.wait()
	m.gameTime.Add(int64(diff))
	m.spatial.tick(diff)

	players := m.Players()

	var tasks errgroup.Group
	tasks.SetLimit(m.cfg.Workers)
	for _, p := range players {
		if p.session == nil {
			continue
		}
		tasks.Go(func() error {
			p.session.Update(diff)
			return nil
		})
	}

	m.respawnTimer.Update(diff)
	if m.respawnTimer.Passed() {
		m.respawnTimer.Reset()
		tasks.Go(func() error {
			m.ProcessRespawns()
			m.UpdateSpawnGroupConditions()
			return nil
		})
	}
	_ = tasks.Wait()

	m.marks.reset()
	for _, pos := range m.updateCenters(players) {
		tasks.Go(func() error {
			m.visitNearby(pos)
			return nil
		})
	}
	_ = tasks.Wait()

	m.executeUpdates(diff)

	var transports errgroup.Group
	transports.SetLimit(1)
	transports.Go(func() error {
		m.updateTransports()
		return nil
	})

	m.flushUpdates()
	m.runScripts()
	m.weather.update(diff)
	m.phases.Update(m, diff)

	_ = transports.Wait()

	m.MoveAllInMoveList()

	if m.HavePlayers() {
		m.reloc.post(func() { m.processRelocationNotifies(diff) })
	}

	if m.inst != nil {
		m.inst.update(diff)
	}

	m.metrics.ObserveMapUpdate(time.Since(start))
}

// updateCenters returns the positions whose surroundings are simulated this tick:
// every player, its viewpoint, combat opponents, aura casters and summons
// beyond visibility range, and every active non-player object.
func (m *Map) updateCenters(players []*Player) []model.Position {
	r2 := float64(m.vis.Distance) * float64(m.vis.Distance)
	var out []model.Position
	for _, p := range players {
		pos := p.Position()
		out = append(out, pos)

		viewpoint, related := p.relatedObjects()
		if !viewpoint.IsEmpty() {
			if o := m.Object(viewpoint); o != nil {
				out = append(out, o.Position())
			}
		}
		for _, guid := range related {
			o := m.Object(guid)
			if o == nil {
				continue
			}
			if op := o.Position(); op.Distance2DSquared(pos) > r2 {
				out = append(out, op)
			}
		}
	}
	for _, o := range m.activeObjects() {
		out = append(out, o.Position())
	}
	return out
}

// visitNearby collects the objects in the unvisited loaded cells around pos.
func (m *Map) visitNearby(pos model.Position) {
	area := cell.CalculateCellArea(pos.X, pos.Y, m.vis.Distance)
	var found []model.GUID
	for x := area.Low.X; x <= area.High.X; x++ {
		for y := area.Low.Y; y <= area.High.Y; y++ {
			cc := cell.CellCoord{X: x, Y: y}
			if !m.marks.testAndSet(cc.ID()) {
				continue
			}
			m.VisitCell(cell.At(cc).WithNoCreate(), func(o *Object) {
				found = append(found, o.guid)
			})
		}
	}
	if len(found) == 0 {
		return
	}
	m.touchedMu.Lock()
	for _, g := range found {
		m.touched[g] = struct{}{}
	}
	m.touchedMu.Unlock()
}

// executeUpdates drives the behaviors of the objects collected this tick, in guid order.
func (m *Map) executeUpdates(diff time.Duration) {
	m.touchedMu.Lock()
	list := make([]model.GUID, 0, len(m.touched))
	for g := range m.touched {
		list = append(list, g)
	}
	clear(m.touched)
	m.touchedMu.Unlock()

	slices.Sort(list)
	for _, guid := range list {
		o := m.Object(guid)
		if o == nil {
			continue
		}
		if b := o.getBehavior(); b != nil {
			b.Update(o, diff)
		}
	}
}

func (m *Map) flushUpdates() {
	m.dirtyMu.Lock()
	list := make([]model.GUID, 0, len(m.dirty))
	for g := range m.dirty {
		list = append(list, g)
	}
	clear(m.dirty)
	m.dirtyMu.Unlock()

	if len(list) == 0 || m.updates == nil {
		return
	}
	slices.Sort(list)
	m.updates.FlushObjectUpdates(m.ID(), m.instanceID, list)
}

// DelayedUpdate runs after every map of the manager was updated.
func (m *Map) DelayedUpdate(diff time.Duration) {
	m.reloc.wait()
	m.removeLeavingTransports()
	m.RemoveAllObjectsInRemoveList()

	if m.bg != nil {
		return
	}
	m.forEachGrid(func(g *Grid) {
		m.updateGridState(g, diff)
	})
}

// processRelocationNotifies recomputes visibility around moved objects in
// active grids whose notify period elapsed, then clears the notify flags.
func (m *Map) processRelocationNotifies(diff time.Duration) {
	var due []*Grid
	m.forEachGrid(func(g *Grid) {
		if g.State() != GridActive {
			return
		}
		g.mu.Lock()
		g.relocation.Update(diff)
		passed := g.relocation.Passed()
		g.mu.Unlock()
		if passed {
			due = append(due, g)
		}
	})
	if len(due) == 0 {
		return
	}

	players := m.Players()
	recompute := make(map[model.GUID]*Player)
	for _, g := range due {
		m.forMarkedCells(g, func(c cell.Cell) {
			m.VisitCell(c, func(o *Object) {
				if !o.needsNotify() {
					return
				}
				if p := m.Player(o.guid); p != nil {
					recompute[p.guid] = p
					return
				}
				pos := o.Position()
				m.VisitRadius(pos.X, pos.Y, m.vis.Distance, true, func(viewer *Object) {
					if p := m.Player(viewer.guid); p != nil {
						recompute[p.guid] = p
					}
				})
				// Viewers the object just left are outside the radius.
				for _, p := range players {
					if p.CanSee(o.guid) {
						recompute[p.guid] = p
					}
				}
			})
		})
	}

	viewers := make([]*Player, 0, len(recompute))
	for _, p := range recompute {
		viewers = append(viewers, p)
	}
	slices.SortFunc(viewers, func(a, b *Player) int { return compareGUID(a.guid, b.guid) })
	for _, p := range viewers {
		m.updateVisibilityOf(p)
	}

	for _, g := range due {
		m.forMarkedCells(g, func(c cell.Cell) {
			m.VisitCell(c, func(o *Object) { o.resetNotify() })
		})
		g.mu.Lock()
		g.relocation.Reset()
		g.mu.Unlock()
	}
}

func (m *Map) forMarkedCells(g *Grid, fn func(cell.Cell)) {
	gridCells(g, func(cc cell.CellCoord) {
		if m.marks.isMarked(cc.ID()) {
			fn(cell.At(cc).WithNoCreate())
		}
	})
}

// updateVisibilityOf recomputes the visible set of p and reports the differences.
func (m *Map) updateVisibilityOf(p *Player) {
	pos := p.Position()
	now := make(map[model.GUID]struct{})
	for _, o := range m.ObjectsInRange(pos, m.vis.Distance) {
		if o.guid == p.guid {
			continue
		}
		if !o.phaseOwner.IsEmpty() && o.phaseOwner != p.guid {
			continue
		}
		now[o.guid] = struct{}{}
	}
	appeared, disappeared := p.updateVisible(now)
	if m.visibility == nil {
		return
	}
	for _, g := range appeared {
		m.visibility.ObjectAppeared(p.guid, g)
	}
	for _, g := range disappeared {
		m.visibility.ObjectDisappeared(p.guid, g)
	}
}

// forgetForViewers drops a departing object from every visible set.
func (m *Map) forgetForViewers(guid model.GUID) {
	for _, p := range m.Players() {
		if p.guid == guid || !p.forget(guid) {
			continue
		}
		if m.visibility != nil {
			m.visibility.ObjectDisappeared(p.guid, guid)
		}
	}
}
