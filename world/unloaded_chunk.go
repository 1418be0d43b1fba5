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

	"github.com/Tnze/go-mc/level"
	"github.com/Tnze/go-mc/level/biome"
	"github.com/Tnze/go-mc/level/block"
)

// UnloadedChunk is chunk data that is not part of any layer. It records
// no changes and has no viewers.
type UnloadedChunk struct {
	sections      []section
	blockEntities map[int]Compound
}

var _ Chunk = (*UnloadedChunk)(nil)

// NewUnloadedChunk returns an empty chunk with no sections. Layers resize
// inserted chunks to their own height.
func NewUnloadedChunk() *UnloadedChunk {
	return &UnloadedChunk{blockEntities: make(map[int]Compound)}
}

// NewUnloadedChunkWithHeight returns an empty chunk of the given height,
// which is rounded down to a multiple of 16.
func NewUnloadedChunkWithHeight(height int) *UnloadedChunk {
	c := NewUnloadedChunk()
	c.SetHeight(height)
	return c
}

// SetHeight grows or truncates the chunk. New sections are air. Block
// entities above the new height are dropped.
func (c *UnloadedChunk) SetHeight(height int) {
	height = min(height/16*16, maxHeight)
	count := height / 16

	if count < len(c.sections) {
		clear(c.sections[count:])
		c.sections = c.sections[:count]
		maps.DeleteFunc(c.blockEntities, func(idx int, _ Compound) bool {
			return idx >= sectionBlockCount*count
		})
	}
	for len(c.sections) < count {
		c.sections = append(c.sections, newSection())
	}
}

func (c *UnloadedChunk) Height() int { return len(c.sections) * 16 }

func (c *UnloadedChunk) BlockState(x, y, z int) block.StateID {
	checkBlockOOB(c, x, y, z)
	return c.sections[y/16].states.Get(blockIndex(x, y, z))
}

func (c *UnloadedChunk) SetBlockState(x, y, z int, s block.StateID) block.StateID {
	checkBlockOOB(c, x, y, z)
	return c.sections[y/16].states.Set(blockIndex(x, y, z), s)
}

func (c *UnloadedChunk) FillBlockStateSection(sectY int, s block.StateID) {
	checkSectionOOB(c, sectY)
	c.sections[sectY].states.Fill(s)
}

func (c *UnloadedChunk) BlockEntity(x, y, z int) (Compound, bool) {
	checkBlockOOB(c, x, y, z)
	be, ok := c.blockEntities[x+z*16+y*256]
	return be, ok
}

func (c *UnloadedChunk) SetBlockEntity(x, y, z int, be Compound) (Compound, bool) {
	checkBlockOOB(c, x, y, z)
	idx := x + z*16 + y*256
	old, ok := c.blockEntities[idx]
	if be == nil {
		delete(c.blockEntities, idx)
	} else {
		c.blockEntities[idx] = be
	}
	return old, ok
}

func (c *UnloadedChunk) EditBlockEntity(x, y, z int) (Compound, bool) {
	return c.BlockEntity(x, y, z)
}

func (c *UnloadedChunk) ClearBlockEntities() { clear(c.blockEntities) }

func (c *UnloadedChunk) Biome(x, y, z int) biome.Type {
	checkBiomeOOB(c, x, y, z)
	return c.sections[y/4].biomes.Get(biomeIndex(x, y, z))
}

func (c *UnloadedChunk) SetBiome(x, y, z int, b biome.Type) biome.Type {
	checkBiomeOOB(c, x, y, z)
	return c.sections[y/4].biomes.Set(biomeIndex(x, y, z), b)
}

func (c *UnloadedChunk) FillBiomeSection(sectY int, b biome.Type) {
	checkSectionOOB(c, sectY)
	c.sections[sectY].biomes.Fill(b)
}

func (c *UnloadedChunk) Optimize() {
	for i := range c.sections {
		c.sections[i].states.Optimize()
		c.sections[i].biomes.Optimize()
	}
}

// Clone returns a deep copy of the chunk.
func (c *UnloadedChunk) Clone() *UnloadedChunk {
	clone := &UnloadedChunk{
		sections:      make([]section, len(c.sections)),
		blockEntities: make(map[int]Compound, len(c.blockEntities)),
	}
	for i := range c.sections {
		clone.sections[i] = c.sections[i].clone()
	}
	for idx, be := range c.blockEntities {
		clone.blockEntities[idx] = maps.Clone(be)
	}
	return clone
}

// UnloadedChunkFromLevel converts a chunk read from a region file. minY is
// the lowest block of the dimension the chunk was saved in.
func UnloadedChunkFromLevel(lc *level.Chunk, minY int) (*UnloadedChunk, error) {
	c := NewUnloadedChunkWithHeight(len(lc.Sections) * 16)
	for i := range lc.Sections {
		s := &lc.Sections[i]
		for j := 0; j < sectionBlockCount; j++ {
			c.sections[i].states.Set(j, block.StateID(s.States.Get(j)))
		}
		for j := 0; j < sectionBiomeCount; j++ {
			c.sections[i].biomes.Set(j, biome.Type(s.Biomes.Get(j)))
		}
	}
	for _, be := range lc.BlockEntity {
		x, z := int(uint8(be.XZ)>>4), int(uint8(be.XZ)&0xF)
		y := int(be.Y) - minY
		if y < 0 || y >= c.Height() {
			return nil, fmt.Errorf("block entity at y=%d out of bounds", be.Y)
		}
		data := Compound{}
		if err := be.Data.Unmarshal(&data); err != nil {
			return nil, fmt.Errorf("decode block entity fail: %w", err)
		}
		c.blockEntities[x+z*16+y*256] = data
	}
	c.Optimize()
	return c, nil
}
