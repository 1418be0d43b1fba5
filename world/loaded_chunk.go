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
	"fmt"
	"math/bits"
	"slices"
	"sync/atomic"

	"github.com/Tnze/go-mc/data/packetid"
	"github.com/Tnze/go-mc/level/biome"
	"github.com/Tnze/go-mc/level/block"
	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/sasha-s/go-deadlock"

	"FlowyLayer/world/internal/palette"
)

type chunkState uint8

const (
	// chunkAdded chunks were inserted into a vacant position this tick.
	chunkAdded chunkState = iota
	// chunkAddedRemoved chunks were inserted and removed in the same tick.
	chunkAddedRemoved
	// chunkRemoved chunks were removed this tick and are dropped after the
	// clients are told to forget them.
	chunkRemoved
	// chunkOverwrite chunks had their content replaced this tick.
	chunkOverwrite
	chunkNormal
)

func (s chunkState) removed() bool { return s == chunkAddedRemoved || s == chunkRemoved }

// LoadedChunk is a chunk that is part of a ChunkLayer.
//
// While the chunk has viewers, every modification is recorded so the
// changes can be sent to them before the next client update. The chunk data
// packet sent to new viewers is built once and cached until the chunk
// changes.
type LoadedChunk struct {
	state  chunkState
	height int

	sections      []section
	blockEntities map[int]Compound

	changedBlockEntities map[int]struct{}
	changedBiomes        bool

	viewers atomic.Int32

	cache struct {
		deadlock.Mutex
		data []byte
	}
}

var _ Chunk = (*LoadedChunk)(nil)

func newLoadedChunk(height int) *LoadedChunk {
	c := &LoadedChunk{
		height:               height,
		blockEntities:        make(map[int]Compound),
		changedBlockEntities: make(map[int]struct{}),
	}
	c.sections = make([]section, height/16)
	for i := range c.sections {
		c.sections[i] = newSection()
	}
	return c
}

// insert replaces the content of the chunk and returns the old content.
// The incoming chunk is resized to the height of this one.
func (c *LoadedChunk) insert(chunk *UnloadedChunk) *UnloadedChunk {
	chunk.SetHeight(c.height)
	old := &UnloadedChunk{sections: c.sections, blockEntities: c.blockEntities}
	for i := range old.sections {
		old.sections[i].updates = nil
	}
	c.sections, c.blockEntities = chunk.sections, chunk.blockEntities
	chunk.sections, chunk.blockEntities = nil, make(map[int]Compound)

	clear(c.changedBlockEntities)
	c.changedBiomes = false
	c.clearCache()
	return old
}

// remove takes the content out of the chunk.
func (c *LoadedChunk) remove() *UnloadedChunk {
	old := &UnloadedChunk{sections: c.sections, blockEntities: c.blockEntities}
	for i := range old.sections {
		old.sections[i].updates = nil
	}
	c.sections, c.blockEntities = nil, make(map[int]Compound)

	clear(c.changedBlockEntities)
	c.changedBiomes = false
	c.clearCache()
	return old
}

// snapshot returns a copy of the content of the chunk.
func (c *LoadedChunk) snapshot() *UnloadedChunk {
	return (&UnloadedChunk{sections: c.sections, blockEntities: c.blockEntities}).Clone()
}

// Viewers returns the number of clients in view of the chunk.
func (c *LoadedChunk) Viewers() int { return int(c.viewers.Load()) }

// IncViewerCount is called when a client starts viewing the chunk.
func (c *LoadedChunk) IncViewerCount() { c.viewers.Add(1) }

// DecViewerCount is called when a client stops viewing the chunk. It
// panics if the count would go below zero.
func (c *LoadedChunk) DecViewerCount() {
	if c.viewers.Add(-1) < 0 {
		panic("loaded chunk: viewer count underflow")
	}
}

func (c *LoadedChunk) viewed() bool { return c.viewers.Load() > 0 }

func (c *LoadedChunk) clearCache() {
	c.cache.Lock()
	c.cache.data = c.cache.data[:0]
	c.cache.Unlock()
}

func (c *LoadedChunk) Height() int { return len(c.sections) * 16 }

func (c *LoadedChunk) BlockState(x, y, z int) block.StateID {
	checkBlockOOB(c, x, y, z)
	return c.sections[y/16].states.Get(blockIndex(x, y, z))
}

func (c *LoadedChunk) SetBlockState(x, y, z int, s block.StateID) block.StateID {
	checkBlockOOB(c, x, y, z)
	sect := &c.sections[y/16]
	old := sect.states.Set(blockIndex(x, y, z), s)
	if old != s {
		c.clearCache()
		if c.viewed() {
			sect.updates = append(sect.updates, sectionUpdate(x, y%16, z, s))
		}
	}
	return old
}

func (c *LoadedChunk) FillBlockStateSection(sectY int, s block.StateID) {
	checkSectionOOB(c, sectY)
	sect := &c.sections[sectY]

	if v, ok := sect.states.Single(); ok {
		if v != s {
			c.clearCache()
			if c.viewed() {
				// Every cell changes, earlier updates are superseded.
				sect.updates = slices.Grow(sect.updates[:0], sectionBlockCount)
				for z := 0; z < 16; z++ {
					for x := 0; x < 16; x++ {
						for y := 0; y < 16; y++ {
							sect.updates = append(sect.updates, sectionUpdate(x, y, z, s))
						}
					}
				}
			}
		}
	} else {
		viewed, changed := c.viewed(), false
		for z := 0; z < 16; z++ {
			for x := 0; x < 16; x++ {
				for y := 0; y < 16; y++ {
					if sect.states.Get(blockIndex(x, y, z)) == s {
						continue
					}
					changed = true
					if viewed {
						sect.updates = append(sect.updates, sectionUpdate(x, y, z, s))
					}
				}
			}
		}
		if changed {
			c.clearCache()
		}
	}
	sect.states.Fill(s)
}

func (c *LoadedChunk) BlockEntity(x, y, z int) (Compound, bool) {
	checkBlockOOB(c, x, y, z)
	be, ok := c.blockEntities[x+z*16+y*256]
	return be, ok
}

func (c *LoadedChunk) SetBlockEntity(x, y, z int, be Compound) (Compound, bool) {
	checkBlockOOB(c, x, y, z)
	idx := x + z*16 + y*256
	old, ok := c.blockEntities[idx]

	if be == nil {
		if ok {
			delete(c.blockEntities, idx)
			c.clearCache()
		}
		return old, ok
	}

	if c.viewed() {
		c.changedBlockEntities[idx] = struct{}{}
	}
	c.clearCache()
	c.blockEntities[idx] = be
	return old, ok
}

// EditBlockEntity returns the block entity for modification. The entity is
// considered changed whether or not the caller modifies it.
func (c *LoadedChunk) EditBlockEntity(x, y, z int) (Compound, bool) {
	checkBlockOOB(c, x, y, z)
	idx := x + z*16 + y*256
	be, ok := c.blockEntities[idx]
	if !ok {
		return nil, false
	}
	if c.viewed() {
		c.changedBlockEntities[idx] = struct{}{}
	}
	c.clearCache()
	return be, true
}

func (c *LoadedChunk) ClearBlockEntities() {
	if len(c.blockEntities) == 0 {
		return
	}
	c.clearCache()
	if c.viewed() {
		for idx := range c.blockEntities {
			c.changedBlockEntities[idx] = struct{}{}
		}
	}
	clear(c.blockEntities)
}

func (c *LoadedChunk) Biome(x, y, z int) biome.Type {
	checkBiomeOOB(c, x, y, z)
	return c.sections[y/4].biomes.Get(biomeIndex(x, y, z))
}

func (c *LoadedChunk) SetBiome(x, y, z int, b biome.Type) biome.Type {
	checkBiomeOOB(c, x, y, z)
	old := c.sections[y/4].biomes.Set(biomeIndex(x, y, z), b)
	if old != b {
		c.clearCache()
		if c.viewed() {
			c.changedBiomes = true
		}
	}
	return old
}

func (c *LoadedChunk) FillBiomeSection(sectY int, b biome.Type) {
	checkSectionOOB(c, sectY)
	sect := &c.sections[sectY]
	if v, ok := sect.biomes.Single(); !ok || v != b {
		c.clearCache()
		if c.viewed() {
			c.changedBiomes = true
		}
	}
	sect.biomes.Fill(b)
}

func (c *LoadedChunk) Optimize() {
	for i := range c.sections {
		c.sections[i].states.Optimize()
		c.sections[i].biomes.Optimize()
		c.sections[i].updates = slices.Clip(c.sections[i].updates)
	}
	c.cache.Lock()
	c.cache.data = slices.Clip(c.cache.data)
	c.cache.Unlock()
}

// hasChanges reports whether any change is waiting to be sent.
func (c *LoadedChunk) hasChanges() bool {
	if c.changedBiomes || len(c.changedBlockEntities) > 0 {
		return true
	}
	for i := range c.sections {
		if len(c.sections[i].updates) > 0 {
			return true
		}
	}
	return false
}

// updatePreClient turns the recorded changes into messages for the viewers
// of the chunk and clears them.
func (c *LoadedChunk) updatePreClient(pos ChunkPos, info *ChunkLayerInfo, messages *chunkMessages) {
	if !c.viewed() {
		if c.hasChanges() {
			panic(fmt.Sprintf("loaded chunk %v: changes recorded without viewers", pos))
		}
		return
	}

	at := chunkLocal{kind: chunkPacketAt, pos: pos}
	minSectY := floorDiv(info.MinY, 16)

	for sectY := range c.sections {
		sect := &c.sections[sectY]
		switch len(sect.updates) {
		case 0:
		case 1:
			x, y, z, s := unpackSectionUpdate(sect.updates[0])
			blockPos := BlockPos{
				X: pos.X*16 + int32(x),
				Y: info.MinY + int32(sectY)*16 + int32(y),
				Z: pos.Z*16 + int32(z),
			}
			messages.SendLocal(at, func(buf *bytes.Buffer) {
				writeBlockUpdate(NewPacketWriter(buf, info.Threshold), blockPos, s)
			})
		default:
			messages.SendLocal(at, func(buf *bytes.Buffer) {
				writeSectionBlocksUpdate(NewPacketWriter(buf, info.Threshold), pos, minSectY+int32(sectY), sect.updates)
			})
		}
		sect.updates = sect.updates[:0]
	}

	changed := make([]int, 0, len(c.changedBlockEntities))
	for idx := range c.changedBlockEntities {
		changed = append(changed, idx)
	}
	slices.Sort(changed)
	for _, idx := range changed {
		be, ok := c.blockEntities[idx]
		if !ok {
			continue
		}
		x, z, y := idx%16, idx/16%16, idx/256
		kind, ok := blockEntityKind(c.sections[y/16].states.Get(idx % sectionBlockCount))
		if !ok {
			continue
		}
		blockPos := BlockPos{X: pos.X*16 + int32(x), Y: info.MinY + int32(y), Z: pos.Z*16 + int32(z)}
		messages.SendLocal(at, func(buf *bytes.Buffer) {
			writeBlockEntityData(NewPacketWriter(buf, info.Threshold), blockPos, kind, be)
		})
	}
	clear(c.changedBlockEntities)

	if c.changedBiomes {
		c.changedBiomes = false
		messages.SendLocal(chunkLocal{kind: chunkChangeBiome, pos: pos}, func(buf *bytes.Buffer) {
			for i := range c.sections {
				if _, err := c.sections[i].biomes.Encode(buf, biomeBits, 0, 3, info.biomeBits()); err != nil {
					panic(err)
				}
			}
		})
	}
}

// motionBlocking returns the MOTION_BLOCKING heightmap: for every column,
// indexed z*16+x, two more than the highest motion blocking block, or 0
// if there is none.
func (c *LoadedChunk) motionBlocking() []uint64 {
	heights := make([]uint64, 16*16)
	for z := 0; z < 16; z++ {
		for x := 0; x < 16; x++ {
			for y := c.Height() - 1; y >= 0; y-- {
				if blocksMotion(c.BlockState(x, y, z)) {
					heights[z*16+x] = uint64(y + 2)
					break
				}
			}
		}
	}
	return heights
}

// WriteInitPackets writes the packets that send the whole chunk to a new
// viewer. The packets are built once and reused until the chunk changes.
func (c *LoadedChunk) WriteInitPackets(w *PacketWriter, pos ChunkPos, info *ChunkLayerInfo) {
	c.cache.Lock()
	defer c.cache.Unlock()

	if len(c.cache.data) == 0 {
		var blocksAndBiomes bytes.Buffer
		for i := range c.sections {
			if err := c.sections[i].encode(&blocksAndBiomes, info); err != nil {
				panic(fmt.Errorf("encode section %d of chunk %v fail: %w", i, pos, err))
			}
		}

		idxs := make([]int, 0, len(c.blockEntities))
		for idx := range c.blockEntities {
			idxs = append(idxs, idx)
		}
		slices.Sort(idxs)
		blockEntities := make([]chunkBlockEntity, 0, len(idxs))
		for _, idx := range idxs {
			x, z, y := idx%16, idx/16%16, idx/256
			kind, ok := blockEntityKind(c.sections[y/16].states.Get(idx % sectionBlockCount))
			if !ok {
				continue
			}
			blockEntities = append(blockEntities, chunkBlockEntity{
				x: x, z: z, y: info.MinY + int32(y),
				kind: kind,
				data: c.blockEntities[idx],
			})
		}

		heightmaps := struct {
			MotionBlocking []uint64 `nbt:"MOTION_BLOCKING"`
		}{
			MotionBlocking: palette.Pack(c.motionBlocking(), bits.Len(uint(c.Height()+1))),
		}

		buf := bytes.NewBuffer(c.cache.data[:0])
		NewPacketWriter(buf, info.Threshold).WritePacket(
			packetid.ClientboundLevelChunkWithLight,
			pos,
			pk.NBT(heightmaps),
			pk.ByteArray(blocksAndBiomes.Bytes()),
			pk.Array(blockEntities),
			fullBrightLight{sections: len(c.sections)},
		)
		c.cache.data = buf.Bytes()
	}

	w.WritePacketBytes(c.cache.data)
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
