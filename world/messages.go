// This file is part of go-mc/server project.
// Copyright (C) 2023.  Tnze
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package world

import (
	"bytes"
	"slices"

	"FlowyLayer/world/internal/bvh"
)

type (
	vec2d        = bvh.Vec2[float64]
	aabb2d       = bvh.AABB[float64, vec2d]
	messageLeaf  = bvh.Leaf[aabb2d, int]
	messageNode  = bvh.Node[float64, aabb2d, int]
	messageIndex = bvh.Tree[float64, aabb2d, int]
)

// GlobalTag is the tag of a message sent to every viewer of a layer.
type GlobalTag[G any] interface {
	Compare(G) int
}

// LocalTag is the tag of a message sent to the viewers of one chunk.
type LocalTag[L any] interface {
	Compare(L) int
	ChunkPos() ChunkPos
}

// Messages is the per tick outbox of a layer.
//
// Messages are staged with SendGlobal and SendLocal. Ready sorts them by
// tag and gathers the bytes of equal tags together, after which they can
// be read with IterGlobal and QueryLocal until Unready resets everything
// for the next tick.
type Messages[G GlobalTag[G], L LocalTag[L]] struct {
	global []message[G]
	local  []message[L]

	staging bytes.Buffer
	ready   []byte

	index  messageIndex
	leaves []messageLeaf

	isReady bool
}

type message[T any] struct {
	tag        T
	start, end int
}

// SendGlobal stages the bytes written by f under tag.
func (m *Messages[G, L]) SendGlobal(tag G, f func(w *bytes.Buffer)) {
	m.global = send(m, m.global, tag, f, func(a, b G) bool { return a.Compare(b) == 0 })
}

// SendLocal stages the bytes written by f under tag.
func (m *Messages[G, L]) SendLocal(tag L, f func(w *bytes.Buffer)) {
	m.local = send(m, m.local, tag, f, func(a, b L) bool { return a.Compare(b) == 0 })
}

func send[G GlobalTag[G], L LocalTag[L], T any](m *Messages[G, L], msgs []message[T], tag T, f func(w *bytes.Buffer), equal func(a, b T) bool) []message[T] {
	if m.isReady {
		panic("messages: send after ready")
	}
	start := m.staging.Len()
	f(&m.staging)
	end := m.staging.Len()

	// Extend the previous entry only if its bytes end where ours begin,
	// the other stream may have written in between.
	if n := len(msgs); n > 0 && msgs[n-1].end == start && equal(msgs[n-1].tag, tag) {
		msgs[n-1].end = end
		return msgs
	}
	return append(msgs, message[T]{tag: tag, start: start, end: end})
}

// Ready sorts and merges the staged messages and builds the spatial index
// of the local ones. It panics if the messages are already ready.
func (m *Messages[G, L]) Ready() {
	if m.isReady {
		panic("messages: ready called twice")
	}
	m.isReady = true
	if len(m.ready) != 0 {
		panic("messages: ready buffer not cleared")
	}

	staging := m.staging.Bytes()
	m.global = merge(m, m.global, staging, func(a, b G) int { return a.Compare(b) })
	m.local = merge(m, m.local, staging, func(a, b L) int { return a.Compare(b) })

	m.leaves = m.leaves[:0]
	for i, msg := range m.local {
		pos := msg.tag.ChunkPos()
		x, z := float64(pos.X), float64(pos.Z)
		m.leaves = append(m.leaves, messageLeaf{
			Box:   aabb2d{Upper: vec2d{x + 0.5, z + 0.5}, Lower: vec2d{x - 0.5, z - 0.5}},
			Value: i,
		})
	}
	slices.SortFunc(m.leaves, func(a, b messageLeaf) int {
		return m.local[a.Value].tag.ChunkPos().Compare(m.local[b.Value].tag.ChunkPos())
	})
	m.index.Build(m.leaves)
}

// merge stably sorts msgs and copies the bytes of each run of equal tags
// into one contiguous range of the ready buffer.
func merge[G GlobalTag[G], L LocalTag[L], T any](m *Messages[G, L], msgs []message[T], staging []byte, compare func(a, b T) int) []message[T] {
	slices.SortStableFunc(msgs, func(a, b message[T]) int { return compare(a.tag, b.tag) })
	merged := msgs[:0]
	for i := 0; i < len(msgs); {
		tag := msgs[i].tag
		start := len(m.ready)
		for ; i < len(msgs) && compare(msgs[i].tag, tag) == 0; i++ {
			m.ready = append(m.ready, staging[msgs[i].start:msgs[i].end]...)
		}
		merged = append(merged, message[T]{tag: tag, start: start, end: len(m.ready)})
	}
	return merged
}

// Unready discards every message. It panics if the messages are not ready.
func (m *Messages[G, L]) Unready() {
	if !m.isReady {
		panic("messages: unready called before ready")
	}
	m.isReady = false
	m.global = m.global[:0]
	m.local = m.local[:0]
	m.staging.Reset()
	m.ready = m.ready[:0]
	m.index.Reset()
}

// IsReady reports whether Ready has been called since the last Unready.
func (m *Messages[G, L]) IsReady() bool { return m.isReady }

// IterGlobal calls f for every global message in tag order.
func (m *Messages[G, L]) IterGlobal(f func(tag G, b []byte)) {
	m.mustReady()
	for _, msg := range m.global {
		f(msg.tag, m.ready[msg.start:msg.end])
	}
}

// QueryLocal calls f in tag order for every local message whose chunk is
// in view.
func (m *Messages[G, L]) QueryLocal(view ChunkView, f func(tag L, b []byte)) {
	m.mustReady()
	var matches []int
	m.index.Find(bvh.TouchBound(viewBox(view)), func(n *messageNode) bool {
		if view.Contains(m.local[n.Value].tag.ChunkPos()) {
			matches = append(matches, n.Value)
		}
		return true
	})
	slices.Sort(matches)
	for _, i := range matches {
		msg := m.local[i]
		f(msg.tag, m.ready[msg.start:msg.end])
	}
}

func (m *Messages[G, L]) mustReady() {
	if !m.isReady {
		panic("messages: read before ready")
	}
}
