package engine

import (
	"time"

	"github.com/sirupsen/logrus"
)

// GCStats are cumulative statistics of the heap collector.
type GCStats struct {
	Collections  int
	Reclaimed    int64
	LastLive     int
	LastDuration time.Duration
}

// GCStats returns the collector statistics.
func (m *Machine) GCStats() GCStats {
	return m.stats
}

// HeapSize returns the number of heap cells in use.
func (m *Machine) HeapSize() int {
	return len(m.heap)
}

// maybeCollect collects when the heap is over the threshold. Inside a nested solve, foreign code holds heap words
// in Go variables, so collection waits until the solve returns and releases its cells.
func (m *Machine) maybeCollect() {
	if m.nested == 0 && len(m.heap) > m.gcThreshold {
		m.collect()
		if len(m.heap)*2 > m.gcThreshold {
			m.gcThreshold *= 2
		}
	}
}

// Collect runs the heap collector unless the machine is inside a nested call.
func (m *Machine) Collect() bool {
	if m.nested > 0 {
		return false
	}
	m.collect()
	return true
}

type collector struct {
	m     *Machine
	live  []bool
	stack []int
}

// root marks a root word and returns it, or void if it does not refer to a valid cell.
func (c *collector) root(w Word) Word {
	switch w.Tag() {
	case TagVariable:
		if w.IsVoid() || w.Index() >= len(c.m.heap) {
			return 0
		}
	case TagCompound:
		if w.Index() >= len(c.m.heap) {
			return 0
		}
		fc := c.m.heap[w.Index()]
		if fc.Tag() != TagConstant || c.m.consts.Kind(fc.ConstID()) != KindFunctor {
			return 0
		}
		if f, _ := c.m.consts.FunctorOf(fc.ConstID()); w.Index()+f.Arity >= len(c.m.heap) {
			return 0
		}
	default:
		return w
	}
	c.mark(w)
	return w
}

func (c *collector) mark(w Word) {
	switch w.Tag() {
	case TagVariable:
		if i := w.Index(); !c.live[i] {
			c.live[i] = true
			c.stack = append(c.stack, i)
		}
	case TagCompound:
		h := w.Index()
		if c.live[h] {
			return
		}
		c.live[h] = true
		f := c.m.functorOf(w)
		for i := h + 1; i <= h+f.Arity; i++ {
			if !c.live[i] {
				c.live[i] = true
				c.stack = append(c.stack, i)
			}
		}
	}
}

func (c *collector) drain() {
	for len(c.stack) > 0 {
		i := c.stack[len(c.stack)-1]
		c.stack = c.stack[:len(c.stack)-1]
		if w := c.m.heap[i]; w.Tag() == TagVariable && w.Index() != i {
			c.mark(w)
		} else if w.Tag() == TagCompound {
			c.mark(w)
		}
	}
}

// frames calls f for every frame reachable from the current frame and from the choicepoints, once each.
func (m *Machine) frames(f func(fr *Frame)) {
	seen := map[*Frame]bool{}
	visit := func(fr *Frame) {
		for ; fr != nil && !seen[fr]; fr = fr.parent {
			seen[fr] = true
			f(fr)
		}
	}
	visit(m.fr)
	for i := range m.cps {
		visit(m.cps[i].fr)
	}
}

// roots applies f to every root word in place. Slices shared between the machine and its choicepoints are
// visited once.
func (m *Machine) roots(f func(Word) Word) {
	seen := map[*Word]bool{}
	apply := func(ws []Word) {
		if len(ws) == 0 || seen[&ws[0]] {
			return
		}
		seen[&ws[0]] = true
		for i, w := range ws {
			ws[i] = f(w)
		}
	}
	apply(m.args)
	apply(m.regs)
	apply(m.pins)
	m.frames(func(fr *Frame) {
		apply(fr.slots)
	})
	for i := range m.cps {
		cp := &m.cps[i]
		apply(cp.regs)
		cp.goal = f(cp.goal)
	}
}

// collect marks the cells reachable from the roots and slides them down, preserving their order.
func (m *Machine) collect() {
	start := time.Now()
	before := len(m.heap)

	c := collector{m: m, live: make([]bool, len(m.heap))}
	c.live[0] = true
	m.roots(func(w Word) Word {
		w = c.root(w)
		c.drain()
		return w
	})

	fwd := make([]int, len(m.heap)+1) // fwd[i] is also the number of live cells below i.
	n := 0
	for i := range m.heap {
		fwd[i] = n
		if c.live[i] {
			n++
		}
	}
	fwd[len(m.heap)] = n
	forward := func(w Word) Word {
		switch w.Tag() {
		case TagVariable:
			if w.IsVoid() {
				return w
			}
			return Variable(fwd[w.Index()])
		case TagCompound:
			return Compound(fwd[w.Index()])
		default:
			return w
		}
	}
	for i, w := range m.heap {
		if c.live[i] {
			m.heap[fwd[i]] = forward(w)
		}
	}
	m.heap = m.heap[:n]
	m.roots(forward)

	kept := make([]int, len(m.trail)+1)
	trail := m.trail[:0]
	for i, e := range m.trail {
		kept[i] = len(trail)
		switch {
		case e.catch != 0:
			trail = append(trail, e)
		case c.live[e.addr]:
			trail = append(trail, trailEntry{addr: fwd[e.addr]})
		}
	}
	kept[len(m.trail)] = len(trail)
	m.trail = trail

	for i := range m.cps {
		cp := &m.cps[i]
		cp.heapMark = fwd[cp.heapMark]
		cp.trailMark = kept[cp.trailMark]
	}

	d := time.Since(start)
	m.stats.Collections++
	m.stats.Reclaimed += int64(before - n)
	m.stats.LastLive = n
	m.stats.LastDuration = d
	m.log.WithFields(logrus.Fields{
		"before":   before,
		"after":    n,
		"duration": d,
	}).Debug("gc")
}
