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
	"testing"

	"golang.org/x/time/rate"
)

type fixedSource struct {
	pos    ChunkPos
	radius int32
}

func (s fixedSource) chunkPosition() ChunkPos { return s.pos }
func (s fixedSource) chunkRadius() int32      { return s.radius }

func TestLoader_Queue(t *testing.T) {
	for _, tc := range []struct {
		radius int32
		want   int
	}{
		{0, 1},
		{1, 5},
		{2, 13},
	} {
		l := newLoader(fixedSource{pos: ChunkPos{10, -4}, radius: tc.radius}, rate.NewLimiter(rate.Inf, 0))
		l.calcLoadingQueue(func(ChunkPos) bool { return false })
		if len(l.loadQueue) != tc.want {
			t.Errorf("radius %d: want %d chunks, got %d", tc.radius, tc.want, len(l.loadQueue))
		}
		if l.loadQueue[0] != (ChunkPos{10, -4}) {
			t.Errorf("radius %d: first chunk is %v", tc.radius, l.loadQueue[0])
		}
	}
}

func TestLoader_NearestFirst(t *testing.T) {
	l := newLoader(fixedSource{radius: maxLoadRadius}, nil)
	l.calcLoadingQueue(func(ChunkPos) bool { return false })
	if len(l.loadQueue) != len(loadList) {
		t.Fatalf("max radius: want %d chunks, got %d", len(loadList), len(l.loadQueue))
	}
	for i := 1; i < len(l.loadQueue); i++ {
		if distance2i(l.loadQueue[i]) < distance2i(l.loadQueue[i-1]) {
			t.Fatalf("chunk %d is nearer than chunk %d", i, i-1)
		}
	}
}

func TestLoader_SkipsLoaded(t *testing.T) {
	l := newLoader(fixedSource{radius: 1}, nil)
	l.calcLoadingQueue(func(pos ChunkPos) bool { return pos.X == 0 })
	if len(l.loadQueue) != 2 {
		t.Errorf("want 2 chunks, got %v", l.loadQueue)
	}
}
