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
	"math/rand"
	"testing"
)

type testGlobal int

const (
	testFoo testGlobal = iota
	testBar
)

func (t testGlobal) Compare(other testGlobal) int { return int(t) - int(other) }

type testLocal struct {
	kind int
	pos  ChunkPos
}

func (t testLocal) Compare(other testLocal) int {
	if t.kind != other.kind {
		return t.kind - other.kind
	}
	return t.pos.Compare(other.pos)
}

func (t testLocal) ChunkPos() ChunkPos { return t.pos }

type testMessages = Messages[testGlobal, testLocal]

func write(b ...byte) func(w *bytes.Buffer) {
	return func(w *bytes.Buffer) { w.Write(b) }
}

func TestMessages_MergeGlobal(t *testing.T) {
	var m testMessages
	m.SendGlobal(testFoo, write(1, 2, 3))
	m.SendGlobal(testBar, write(4, 5, 6))
	m.SendGlobal(testFoo, write(7, 8, 9))
	m.Ready()

	got := make(map[testGlobal][]byte)
	var order []testGlobal
	m.IterGlobal(func(tag testGlobal, b []byte) {
		order = append(order, tag)
		got[tag] = append([]byte(nil), b...)
	})
	if len(order) != 2 || order[0] != testFoo || order[1] != testBar {
		t.Fatalf("want groups [Foo Bar], got %v", order)
	}
	if !bytes.Equal(got[testFoo], []byte{1, 2, 3, 7, 8, 9}) {
		t.Errorf("Foo: got %v", got[testFoo])
	}
	if !bytes.Equal(got[testBar], []byte{4, 5, 6}) {
		t.Errorf("Bar: got %v", got[testBar])
	}
	m.Unready()
}

func TestMessages_InterleavedStreamsAreNotMerged(t *testing.T) {
	var m testMessages
	local := testLocal{pos: ChunkPos{0, 0}}
	m.SendGlobal(testFoo, write(1))
	m.SendLocal(local, write(2))
	m.SendGlobal(testFoo, write(3))
	m.Ready()

	m.IterGlobal(func(tag testGlobal, b []byte) {
		if !bytes.Equal(b, []byte{1, 3}) {
			t.Errorf("global: got %v", b)
		}
	})
	var n int
	m.QueryLocal(ChunkView{Pos: ChunkPos{0, 0}, Dist: 2}, func(tag testLocal, b []byte) {
		n++
		if !bytes.Equal(b, []byte{2}) {
			t.Errorf("local: got %v", b)
		}
	})
	if n != 1 {
		t.Errorf("want 1 local message, got %d", n)
	}
}

func TestMessages_ConservesBytes(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	var m testMessages
	want := make(map[testLocal][]byte)
	var total int
	for i := 0; i < 500; i++ {
		tag := testLocal{kind: r.Intn(3), pos: ChunkPos{int32(r.Intn(9) - 4), int32(r.Intn(9) - 4)}}
		payload := make([]byte, r.Intn(4))
		r.Read(payload)
		want[tag] = append(want[tag], payload...)
		total += len(payload)
		m.SendLocal(tag, write(payload...))
	}
	m.Ready()

	var got int
	var prev *testLocal
	m.QueryLocal(ChunkView{Pos: ChunkPos{0, 0}, Dist: 10}, func(tag testLocal, b []byte) {
		if prev != nil && prev.Compare(tag) >= 0 {
			t.Errorf("tags out of order: %v then %v", *prev, tag)
		}
		prev = &tag
		got += len(b)
		if !bytes.Equal(b, want[tag]) {
			t.Errorf("tag %v: want %v, got %v", tag, want[tag], b)
		}
		delete(want, tag)
	})
	if got != total {
		t.Errorf("want %d bytes, got %d", total, got)
	}
	if len(want) != 0 {
		t.Errorf("%d tags not delivered", len(want))
	}
}

func TestMessages_QueryLocalRespectsView(t *testing.T) {
	var m testMessages
	m.SendLocal(testLocal{pos: ChunkPos{0, 0}}, write(1))
	m.SendLocal(testLocal{pos: ChunkPos{5, 0}}, write(2))
	m.SendLocal(testLocal{pos: ChunkPos{30, 30}}, write(3))
	m.Ready()

	var got []byte
	m.QueryLocal(ChunkView{Pos: ChunkPos{0, 0}, Dist: 3}, func(tag testLocal, b []byte) {
		got = append(got, b...)
	})
	if !bytes.Equal(got, []byte{1, 2}) {
		t.Errorf("want [1 2], got %v", got)
	}
}

func TestMessages_ReadyTwicePanics(t *testing.T) {
	var m testMessages
	m.Ready()
	mustPanic(t, "second Ready", m.Ready)
	m.Unready()
	mustPanic(t, "second Unready", m.Unready)
	mustPanic(t, "IterGlobal before Ready", func() {
		m.IterGlobal(func(testGlobal, []byte) {})
	})
}

func mustPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s should panic", name)
		}
	}()
	f()
}
