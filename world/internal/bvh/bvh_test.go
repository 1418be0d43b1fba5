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

package bvh

import (
	"math/rand"
	"sort"
	"testing"
)

type (
	vec2d  = Vec2[float64]
	aabb2d = AABB[float64, vec2d]
	tree2d = Tree[float64, aabb2d, int]
)

func TestAABB_WithIn(t *testing.T) {
	aabb := aabb2d{Upper: vec2d{2, 2}, Lower: vec2d{-1, -1}}
	if !aabb.WithIn(vec2d{0, 0}) {
		t.Error("(0, 0) should be included")
	}
	if aabb.WithIn(vec2d{-2, -2}) {
		t.Error("(-2, -2) shouldn't be included")
	}
	if aabb.WithIn(vec2d{2, 0}) {
		t.Error("points on the edge shouldn't be included")
	}
}

func TestAABB_Touch(t *testing.T) {
	a := aabb2d{Upper: vec2d{1, 1}, Lower: vec2d{0, 0}}
	if !a.Touch(aabb2d{Upper: vec2d{1.5, 1.5}, Lower: vec2d{0.5, 0.5}}) {
		t.Error("overlapping boxes should touch")
	}
	if a.Touch(aabb2d{Upper: vec2d{2, 1}, Lower: vec2d{1, 0}}) {
		t.Error("boxes sharing an edge shouldn't touch")
	}
}

func TestTree2_Insert(t *testing.T) {
	aabbs := []aabb2d{
		{Upper: vec2d{1, 1}, Lower: vec2d{0, 0}},
		{Upper: vec2d{2, 1}, Lower: vec2d{1, 0}},
		{Upper: vec2d{11, 1}, Lower: vec2d{10, 0}},
		{Upper: vec2d{12, 1}, Lower: vec2d{11, 0}},
		{Upper: vec2d{101, 1}, Lower: vec2d{100, 0}},
		{Upper: vec2d{102, 1}, Lower: vec2d{101, 0}},
		{Upper: vec2d{111, 1}, Lower: vec2d{110, 0}},
		{Upper: vec2d{112, 1}, Lower: vec2d{111, 0}},
		{Upper: vec2d{1, 1}, Lower: vec2d{-1, -1}},
	}

	var bvh tree2d
	for i, aabb := range aabbs {
		bvh.Insert(aabb, i)
		t.Log(bvh)
	}
	if bvh.Len() != len(aabbs) {
		t.Fatalf("want %d leaves, got %d", len(aabbs), bvh.Len())
	}

	var found []int
	bvh.Find(TouchPoint[vec2d, aabb2d](vec2d{0.5, 0.5}), func(n *Node[float64, aabb2d, int]) bool {
		found = append(found, n.Value)
		return true
	})
	sort.Ints(found)
	if len(found) != 2 || found[0] != 0 || found[1] != 8 {
		t.Errorf("want [0 8], got %v", found)
	}
}

func TestTree2_Delete(t *testing.T) {
	var bvh tree2d
	nodes := make([]*Node[float64, aabb2d, int], 10)
	for i := range nodes {
		x := float64(i * 10)
		nodes[i] = bvh.Insert(aabb2d{Upper: vec2d{x + 1, 1}, Lower: vec2d{x, 0}}, i)
	}
	for _, i := range []int{3, 0, 9, 5} {
		if v := bvh.Delete(nodes[i]); v != i {
			t.Fatalf("deleted value: want %d, got %d", i, v)
		}
	}
	for i := range nodes {
		var found bool
		bvh.Find(TouchPoint[vec2d, aabb2d](vec2d{float64(i*10) + 0.5, 0.5}), func(n *Node[float64, aabb2d, int]) bool {
			found = found || n.Value == i
			return true
		})
		deleted := i == 3 || i == 0 || i == 9 || i == 5
		if found == deleted {
			t.Errorf("leaf %d: found=%v deleted=%v", i, found, deleted)
		}
	}
}

func TestTree2_Build(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	leaves := make([]Leaf[aabb2d, int], 200)
	for i := range leaves {
		x, z := float64(r.Intn(64)), float64(r.Intn(64))
		leaves[i] = Leaf[aabb2d, int]{
			Box:   aabb2d{Upper: vec2d{x + 0.5, z + 0.5}, Lower: vec2d{x - 0.5, z - 0.5}},
			Value: i,
		}
	}

	var bvh tree2d
	bvh.Build(leaves)
	if bvh.Len() != len(leaves) {
		t.Fatalf("want %d leaves, got %d", len(leaves), bvh.Len())
	}

	query := aabb2d{Upper: vec2d{20.5, 30.5}, Lower: vec2d{9.5, 14.5}}
	want := make(map[int]bool)
	for _, l := range leaves {
		if l.Box.Touch(query) {
			want[l.Value] = true
		}
	}
	got := make(map[int]bool)
	bvh.Find(TouchBound(query), func(n *Node[float64, aabb2d, int]) bool {
		got[n.Value] = true
		return true
	})
	if len(got) != len(want) {
		t.Fatalf("want %d results, got %d", len(want), len(got))
	}
	for v := range want {
		if !got[v] {
			t.Errorf("leaf %d not found", v)
		}
	}

	bvh.Reset()
	bvh.Find(TouchBound(query), func(n *Node[float64, aabb2d, int]) bool {
		t.Error("reset tree should be empty")
		return false
	})
}

func BenchmarkTree_Insert(b *testing.B) {
	const size = 25

	aabbs := make([]aabb2d, b.N)
	for i := range aabbs {
		pos := vec2d{rand.Float64() * 1e4, rand.Float64() * 1e4}
		aabbs[i] = aabb2d{
			Upper: vec2d{pos[0] + size, pos[1] + size},
			Lower: vec2d{pos[0] - size, pos[1] - size},
		}
	}
	b.ResetTimer()

	var bvh tree2d
	for i, v := range aabbs {
		bvh.Insert(v, i)
	}
}

func BenchmarkTree2_Find_random(b *testing.B) {
	const size = 25

	aabbs := make([]aabb2d, b.N)
	poses := make([]vec2d, b.N)
	for i := range aabbs {
		poses[i] = vec2d{rand.Float64() * 1e4, rand.Float64() * 1e4}
		aabbs[i] = aabb2d{
			Upper: vec2d{poses[i][0] + size, poses[i][1] + size},
			Lower: vec2d{poses[i][0] - size, poses[i][1] - size},
		}
	}

	var bvh tree2d
	for i, v := range aabbs {
		bvh.Insert(v, i)
	}
	b.ResetTimer()

	for _, v := range poses {
		bvh.Find(TouchPoint[vec2d, aabb2d](v), func(n *Node[float64, aabb2d, int]) bool { return true })
	}
}
