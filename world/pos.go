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
	"cmp"
	"fmt"
	"io"
	"math"

	pk "github.com/Tnze/go-mc/net/packet"
)

// ChunkPos is the position of a chunk column in chunk coordinates.
type ChunkPos struct {
	X, Z int32
}

// Compare orders positions by X then Z.
func (p ChunkPos) Compare(other ChunkPos) int {
	switch {
	case p.X != other.X:
		return cmp.Compare(p.X, other.X)
	default:
		return cmp.Compare(p.Z, other.Z)
	}
}

func (p ChunkPos) String() string { return fmt.Sprintf("(%d, %d)", p.X, p.Z) }

// WriteTo writes the position as two Ints, the layout used by the chunk
// data and forget chunk packets.
func (p ChunkPos) WriteTo(w io.Writer) (int64, error) {
	return pk.Tuple{pk.Int(p.X), pk.Int(p.Z)}.WriteTo(w)
}

func (p ChunkPos) distanceSq(other ChunkPos) int64 {
	dx, dz := int64(p.X)-int64(other.X), int64(p.Z)-int64(other.Z)
	return dx*dx + dz*dz
}

// BlockPos is the position of a block in world coordinates.
type BlockPos struct {
	X, Y, Z int32
}

// ChunkPos returns the chunk column containing the block.
func (p BlockPos) ChunkPos() ChunkPos {
	return ChunkPos{X: p.X >> 4, Z: p.Z >> 4}
}

func (p BlockPos) Compare(other BlockPos) int {
	switch {
	case p.X != other.X:
		return cmp.Compare(p.X, other.X)
	case p.Y != other.Y:
		return cmp.Compare(p.Y, other.Y)
	default:
		return cmp.Compare(p.Z, other.Z)
	}
}

func (p BlockPos) distanceSq(other BlockPos) uint64 {
	dx := int64(p.X) - int64(other.X)
	dy := int64(p.Y) - int64(other.Y)
	dz := int64(p.Z) - int64(other.Z)
	return uint64(dx*dx + dy*dy + dz*dz)
}

func (p BlockPos) packet() pk.Position {
	return pk.Position{X: int(p.X), Y: int(p.Y), Z: int(p.Z)}
}

// BlockPosOf returns the block containing an entity position.
func BlockPosOf(pos Position) BlockPos {
	return BlockPos{
		X: int32(math.Floor(pos[0])),
		Y: int32(math.Floor(pos[1])),
		Z: int32(math.Floor(pos[2])),
	}
}

// ChunkPosOf returns the chunk column containing an entity position.
func ChunkPosOf(pos Position) ChunkPos {
	return BlockPosOf(pos).ChunkPos()
}

// ChunkView is the set of chunks a client can see: every chunk within a
// circle around Pos. The radius is padded by two chunks, matching what the
// client keeps loaded.
type ChunkView struct {
	Pos  ChunkPos
	Dist int32
}

func (v ChunkView) paddedDist() int64 { return int64(v.Dist) + 2 }

// Contains reports whether pos is in view.
func (v ChunkView) Contains(pos ChunkPos) bool {
	d := v.paddedDist()
	return v.Pos.distanceSq(pos) <= d*d
}

// Bounds returns the inclusive corners of the square containing the view.
func (v ChunkView) Bounds() (lower, upper ChunkPos) {
	d := int32(v.paddedDist())
	return ChunkPos{v.Pos.X - d, v.Pos.Z - d}, ChunkPos{v.Pos.X + d, v.Pos.Z + d}
}

// ForEach calls f for every chunk in view, stopping when f returns false.
func (v ChunkView) ForEach(f func(pos ChunkPos) bool) {
	lower, upper := v.Bounds()
	for x := lower.X; x <= upper.X; x++ {
		for z := lower.Z; z <= upper.Z; z++ {
			if pos := (ChunkPos{x, z}); v.Contains(pos) && !f(pos) {
				return
			}
		}
	}
}

// Diff calls f for every chunk in v that is not in other.
func (v ChunkView) Diff(other ChunkView, f func(pos ChunkPos)) {
	v.ForEach(func(pos ChunkPos) bool {
		if !other.Contains(pos) {
			f(pos)
		}
		return true
	})
}
