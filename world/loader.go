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
	"math"
	"sort"

	"golang.org/x/time/rate"
)

// loader decides which chunks around one player are loaded next, nearest
// first.
type loader struct {
	loaderSource
	loadQueue []ChunkPos
	limiter   *rate.Limiter
}

type loaderSource interface {
	chunkPosition() ChunkPos
	chunkRadius() int32
}

func newLoader(source loaderSource, limiter *rate.Limiter) *loader {
	return &loader{loaderSource: source, limiter: limiter}
}

// calcLoadingQueue lists the chunks within the radius of the source that
// are not loaded yet.
func (l *loader) calcLoadingQueue(loaded func(pos ChunkPos) bool) {
	l.loadQueue = l.loadQueue[:0]
	center := l.chunkPosition()
	r := min(max(l.chunkRadius(), 0), maxLoadRadius)
	for _, v := range loadList[:radiusIdx[r]] {
		pos := ChunkPos{X: center.X + v.X, Z: center.Z + v.Z}
		if !loaded(pos) {
			l.loadQueue = append(l.loadQueue, pos)
		}
	}
}

const maxLoadRadius int32 = 32

// loadList holds the offsets within maxLoadRadius sorted by distance.
var loadList []ChunkPos

// radiusIdx[r] is the number of offsets in loadList within distance r.
var radiusIdx []int

func init() {
	for x := -maxLoadRadius; x <= maxLoadRadius; x++ {
		for z := -maxLoadRadius; z <= maxLoadRadius; z++ {
			pos := ChunkPos{x, z}
			if distance2i(pos) <= float64(maxLoadRadius) {
				loadList = append(loadList, pos)
			}
		}
	}
	sort.SliceStable(loadList, func(i, j int) bool {
		return distance2i(loadList[i]) < distance2i(loadList[j])
	})

	radiusIdx = make([]int, maxLoadRadius+1)
	for i, v := range loadList {
		radiusIdx[int32(math.Ceil(distance2i(v)))] = i + 1
	}
	for r := 1; r < len(radiusIdx); r++ {
		radiusIdx[r] = max(radiusIdx[r], radiusIdx[r-1])
	}
}

func distance2i(pos ChunkPos) float64 {
	return math.Sqrt(float64(pos.X*pos.X) + float64(pos.Z*pos.Z))
}
