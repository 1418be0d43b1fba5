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
	"fmt"
	"maps"

	"github.com/Tnze/go-mc/level/biome"
	"github.com/Tnze/go-mc/level/block"
)

// Compound is the NBT payload of a block entity.
type Compound = map[string]any

// Block is a block state together with its block entity, if any.
type Block struct {
	State  block.StateID
	Entity Compound
}

// BlockOf returns the block for a state. States of blocks that carry a
// block entity get an empty one.
func BlockOf(s block.StateID) Block {
	b := Block{State: s}
	if _, ok := blockEntityKind(s); ok {
		b.Entity = Compound{}
	}
	return b
}

// Chunk is a column of blocks and biomes in chunk-local coordinates.
//
// x and z range over [0, 16), y over [0, Height()). Biome coordinates are
// a quarter of that. Out of range coordinates panic.
type Chunk interface {
	Height() int

	BlockState(x, y, z int) block.StateID
	// SetBlockState returns the previous state.
	SetBlockState(x, y, z int, s block.StateID) block.StateID
	FillBlockStateSection(sectY int, s block.StateID)

	BlockEntity(x, y, z int) (Compound, bool)
	// SetBlockEntity replaces the block entity at a position and returns
	// the previous one. A nil entity removes it.
	SetBlockEntity(x, y, z int, be Compound) (Compound, bool)
	// EditBlockEntity returns the block entity at a position for
	// modification.
	EditBlockEntity(x, y, z int) (Compound, bool)
	ClearBlockEntities()

	Biome(x, y, z int) biome.Type
	SetBiome(x, y, z int, b biome.Type) biome.Type
	FillBiomeSection(sectY int, b biome.Type)

	// Optimize shrinks the storage of every section.
	Optimize()
}

// BlockAt returns the state and block entity at a position.
func BlockAt(c Chunk, x, y, z int) Block {
	be, _ := c.BlockEntity(x, y, z)
	return Block{State: c.BlockState(x, y, z), Entity: be}
}

// SetBlock sets the state and block entity at a position and returns the
// previous block.
func SetBlock(c Chunk, x, y, z int, b Block) Block {
	s := c.SetBlockState(x, y, z, b.State)
	be, _ := c.SetBlockEntity(x, y, z, b.Entity)
	return Block{State: s, Entity: be}
}

// FillBlocks sets every block of the chunk.
func FillBlocks(c Chunk, b Block) {
	FillBlockStates(c, b.State)
	if b.Entity == nil {
		c.ClearBlockEntities()
		return
	}
	for x := 0; x < 16; x++ {
		for z := 0; z < 16; z++ {
			for y := 0; y < c.Height(); y++ {
				c.SetBlockEntity(x, y, z, maps.Clone(b.Entity))
			}
		}
	}
}

// FillBlockStates sets the state of every block of the chunk.
func FillBlockStates(c Chunk, s block.StateID) {
	for sectY := 0; sectY < c.Height()/16; sectY++ {
		c.FillBlockStateSection(sectY, s)
	}
}

// FillBiomes sets every biome of the chunk.
func FillBiomes(c Chunk, b biome.Type) {
	for sectY := 0; sectY < c.Height()/16; sectY++ {
		c.FillBiomeSection(sectY, b)
	}
}

// ClearChunk resets the chunk to air, the default biome and no block
// entities.
func ClearChunk(c Chunk) {
	FillBlocks(c, Block{State: airState})
	FillBiomes(c, defaultBiome)
}

func checkBlockOOB(c Chunk, x, y, z int) {
	if x < 0 || x >= 16 || y < 0 || y >= c.Height() || z < 0 || z >= 16 {
		panic(fmt.Sprintf("chunk block offsets of (%d, %d, %d) are out of bounds", x, y, z))
	}
}

func checkBiomeOOB(c Chunk, x, y, z int) {
	if x < 0 || x >= 4 || y < 0 || y >= c.Height()/4 || z < 0 || z >= 4 {
		panic(fmt.Sprintf("chunk biome offsets of (%d, %d, %d) are out of bounds", x, y, z))
	}
}

func checkSectionOOB(c Chunk, sectY int) {
	if sectY < 0 || sectY >= c.Height()/16 {
		panic(fmt.Sprintf("chunk section offset of %d is out of bounds", sectY))
	}
}
