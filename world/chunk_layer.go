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
	"cmp"

	"github.com/Tnze/go-mc/data/packetid"
	"github.com/Tnze/go-mc/level/biome"
	pk "github.com/Tnze/go-mc/net/packet"
	"go.uber.org/zap"
)

type chunkGlobalKind uint8

const (
	chunkPacket chunkGlobalKind = iota
	chunkPacketExcept
)

// chunkGlobal tags a message for every viewer of a chunk layer.
type chunkGlobal struct {
	kind   chunkGlobalKind
	except EntityHandle
}

func (t chunkGlobal) Compare(other chunkGlobal) int {
	if c := cmp.Compare(t.kind, other.kind); c != 0 {
		return c
	}
	return cmp.Compare(t.except, other.except)
}

type chunkLocalKind uint8

const (
	chunkPacketAt chunkLocalKind = iota
	chunkPacketAtExcept
	chunkRadiusAt
	chunkRadiusAtExcept
	chunkChangeBiome
	chunkChangeState
)

// chunkLocal tags a message for the viewers of one chunk.
type chunkLocal struct {
	kind chunkLocalKind
	pos  ChunkPos
	// Radius messages reach viewers within sqrt(radiusSq) blocks of center.
	center   BlockPos
	radiusSq uint64
	except   EntityHandle
}

func (t chunkLocal) ChunkPos() ChunkPos {
	if t.kind == chunkRadiusAt || t.kind == chunkRadiusAtExcept {
		return t.center.ChunkPos()
	}
	return t.pos
}

func (t chunkLocal) Compare(other chunkLocal) int {
	if c := cmp.Compare(t.kind, other.kind); c != 0 {
		return c
	}
	if c := t.pos.Compare(other.pos); c != 0 {
		return c
	}
	if c := t.center.Compare(other.center); c != 0 {
		return c
	}
	if c := cmp.Compare(t.radiusSq, other.radiusSq); c != 0 {
		return c
	}
	return cmp.Compare(t.except, other.except)
}

type chunkMessages = Messages[chunkGlobal, chunkLocal]

// Payload bytes of chunkChangeState messages.
const (
	chunkStateLoad byte = iota
	chunkStateUnload
	chunkStateOverwrite
)

// ChunkLayer holds the chunks of one dimension and the messages its
// viewers receive this tick.
type ChunkLayer struct {
	log      *zap.Logger
	info     ChunkLayerInfo
	chunks   map[ChunkPos]*LoadedChunk
	messages chunkMessages
}

// NewChunkLayer returns an empty layer. It panics if the dimension height
// is not a positive multiple of 16 no greater than 4096.
func NewChunkLayer(logger *zap.Logger, info ChunkLayerInfo) *ChunkLayer {
	if info.Height == 0 || info.Height%16 != 0 || info.Height > maxHeight {
		logger.Panic("Invalid dimension height", zap.Uint32("height", info.Height))
	}
	return &ChunkLayer{
		log:    logger,
		info:   info,
		chunks: make(map[ChunkPos]*LoadedChunk),
	}
}

// Info returns the dimension the layer was created with.
func (l *ChunkLayer) Info() ChunkLayerInfo { return l.info }

// Height returns the height of the dimension in blocks.
func (l *ChunkLayer) Height() int { return int(l.info.Height) }

// MinY returns the lowest block y coordinate of the dimension.
func (l *ChunkLayer) MinY() int32 { return l.info.MinY }

// Chunk returns the chunk at pos, or nil if it is not loaded.
func (l *ChunkLayer) Chunk(pos ChunkPos) *LoadedChunk {
	if c, ok := l.chunks[pos]; ok && !c.state.removed() {
		return c
	}
	return nil
}

// Chunks calls f for every loaded chunk until f returns false.
func (l *ChunkLayer) Chunks(f func(pos ChunkPos, c *LoadedChunk) bool) {
	for pos, c := range l.chunks {
		if !c.state.removed() && !f(pos, c) {
			return
		}
	}
}

// Len returns the number of loaded chunks.
func (l *ChunkLayer) Len() (n int) {
	for _, c := range l.chunks {
		if !c.state.removed() {
			n++
		}
	}
	return
}

// InsertChunk loads chunk at pos and returns the content it replaced, or
// nil if the position was vacant. The chunk is resized to the height of
// the layer and must not be used by the caller afterwards.
func (l *ChunkLayer) InsertChunk(pos ChunkPos, chunk *UnloadedChunk) *UnloadedChunk {
	c, ok := l.chunks[pos]
	if !ok {
		c = newLoadedChunk(int(l.info.Height))
		c.insert(chunk)
		l.chunks[pos] = c
		l.sendChunkState(pos, chunkStateLoad)
		return nil
	}

	switch c.state {
	case chunkAddedRemoved:
		c.state = chunkAdded
		c.insert(chunk)
		l.sendChunkState(pos, chunkStateLoad)
		return nil
	case chunkRemoved:
		// Viewers from before the removal still count.
		c.state = chunkOverwrite
		c.insert(chunk)
		l.sendChunkState(pos, chunkStateOverwrite)
		return nil
	case chunkNormal:
		c.state = chunkOverwrite
	}
	old := c.insert(chunk)
	l.sendChunkState(pos, chunkStateOverwrite)
	return old
}

// RemoveChunk unloads the chunk at pos and returns its content, or nil if
// no chunk is loaded there.
func (l *ChunkLayer) RemoveChunk(pos ChunkPos) *UnloadedChunk {
	c := l.Chunk(pos)
	if c == nil {
		return nil
	}
	return l.removeChunk(pos, c)
}

func (l *ChunkLayer) removeChunk(pos ChunkPos, c *LoadedChunk) *UnloadedChunk {
	if c.state == chunkAdded {
		c.state = chunkAddedRemoved
	} else {
		c.state = chunkRemoved
	}
	l.sendChunkState(pos, chunkStateUnload)
	return c.remove()
}

// RetainChunks unloads every chunk for which f returns false.
func (l *ChunkLayer) RetainChunks(f func(pos ChunkPos, c *LoadedChunk) bool) {
	for pos, c := range l.chunks {
		if !c.state.removed() && !f(pos, c) {
			l.removeChunk(pos, c)
		}
	}
}

// ClearChunks unloads every chunk.
func (l *ChunkLayer) ClearChunks() {
	l.RetainChunks(func(ChunkPos, *LoadedChunk) bool { return false })
}

func (l *ChunkLayer) sendChunkState(pos ChunkPos, state byte) {
	l.messages.SendLocal(chunkLocal{kind: chunkChangeState, pos: pos}, func(w *bytes.Buffer) {
		w.WriteByte(state)
	})
}

// chunkAt maps a block position to its chunk and the offsets in it.
func (l *ChunkLayer) chunkAt(pos BlockPos) (c *LoadedChunk, x, y, z int, ok bool) {
	dy := int64(pos.Y) - int64(l.info.MinY)
	if dy < 0 || dy >= int64(l.info.Height) {
		return nil, 0, 0, 0, false
	}
	c = l.Chunk(pos.ChunkPos())
	if c == nil {
		return nil, 0, 0, 0, false
	}
	return c, int(pos.X & 15), int(dy), int(pos.Z & 15), true
}

// Block returns the block at pos. It reports false when pos is outside
// the dimension or its chunk is not loaded.
func (l *ChunkLayer) Block(pos BlockPos) (Block, bool) {
	c, x, y, z, ok := l.chunkAt(pos)
	if !ok {
		return Block{}, false
	}
	return BlockAt(c, x, y, z), true
}

// SetBlock replaces the block at pos and returns the previous one. Nothing
// happens when pos is outside the dimension or its chunk is not loaded.
func (l *ChunkLayer) SetBlock(pos BlockPos, b Block) (Block, bool) {
	c, x, y, z, ok := l.chunkAt(pos)
	if !ok {
		return Block{}, false
	}
	return SetBlock(c, x, y, z, b), true
}

// BlockEntity returns the block entity at pos.
func (l *ChunkLayer) BlockEntity(pos BlockPos) (Compound, bool) {
	c, x, y, z, ok := l.chunkAt(pos)
	if !ok {
		return nil, false
	}
	return c.BlockEntity(x, y, z)
}

// EditBlockEntity returns the block entity at pos for modification.
func (l *ChunkLayer) EditBlockEntity(pos BlockPos) (Compound, bool) {
	c, x, y, z, ok := l.chunkAt(pos)
	if !ok {
		return nil, false
	}
	return c.EditBlockEntity(x, y, z)
}

// Biome returns the biome of the 4x4x4 cell containing pos.
func (l *ChunkLayer) Biome(pos BlockPos) (biome.Type, bool) {
	c, x, y, z, ok := l.chunkAt(pos)
	if !ok {
		return 0, false
	}
	return c.Biome(x/4, y/4, z/4), true
}

// SetBiome sets the biome of the 4x4x4 cell containing pos.
func (l *ChunkLayer) SetBiome(pos BlockPos, b biome.Type) (biome.Type, bool) {
	c, x, y, z, ok := l.chunkAt(pos)
	if !ok {
		return 0, false
	}
	return c.SetBiome(x/4, y/4, z/4, b), true
}

func (l *ChunkLayer) writeGlobal(tag chunkGlobal, id packetid.ClientboundPacketID, fields []pk.FieldEncoder) {
	l.messages.SendGlobal(tag, func(w *bytes.Buffer) {
		NewPacketWriter(w, l.info.Threshold).WritePacket(id, fields...)
	})
}

func (l *ChunkLayer) writeLocal(tag chunkLocal, id packetid.ClientboundPacketID, fields []pk.FieldEncoder) {
	l.messages.SendLocal(tag, func(w *bytes.Buffer) {
		NewPacketWriter(w, l.info.Threshold).WritePacket(id, fields...)
	})
}

// WritePacket sends a packet to every viewer of the layer.
func (l *ChunkLayer) WritePacket(id packetid.ClientboundPacketID, fields ...pk.FieldEncoder) {
	l.writeGlobal(chunkGlobal{kind: chunkPacket}, id, fields)
}

// WritePacketExcept sends a packet to every viewer of the layer but except.
func (l *ChunkLayer) WritePacketExcept(except EntityHandle, id packetid.ClientboundPacketID, fields ...pk.FieldEncoder) {
	l.writeGlobal(chunkGlobal{kind: chunkPacketExcept, except: except}, id, fields)
}

// ViewWritePacket sends a packet to the viewers of the chunk at pos.
func (l *ChunkLayer) ViewWritePacket(pos ChunkPos, id packetid.ClientboundPacketID, fields ...pk.FieldEncoder) {
	l.writeLocal(chunkLocal{kind: chunkPacketAt, pos: pos}, id, fields)
}

// ViewExceptWritePacket sends a packet to the viewers of the chunk at pos
// but except.
func (l *ChunkLayer) ViewExceptWritePacket(pos ChunkPos, except EntityHandle, id packetid.ClientboundPacketID, fields ...pk.FieldEncoder) {
	l.writeLocal(chunkLocal{kind: chunkPacketAtExcept, pos: pos, except: except}, id, fields)
}

// RadiusWritePacket sends a packet to the viewers within radius blocks of
// center.
func (l *ChunkLayer) RadiusWritePacket(center BlockPos, radius uint32, id packetid.ClientboundPacketID, fields ...pk.FieldEncoder) {
	l.writeLocal(chunkLocal{kind: chunkRadiusAt, center: center, radiusSq: uint64(radius) * uint64(radius)}, id, fields)
}

// RadiusExceptWritePacket is RadiusWritePacket skipping except.
func (l *ChunkLayer) RadiusExceptWritePacket(center BlockPos, radius uint32, except EntityHandle, id packetid.ClientboundPacketID, fields ...pk.FieldEncoder) {
	l.writeLocal(chunkLocal{kind: chunkRadiusAtExcept, center: center, radiusSq: uint64(radius) * uint64(radius), except: except}, id, fields)
}

// UpdatePreClient turns the changes of every chunk into messages and
// makes the messages readable. Chunks must not be modified until
// UpdatePostClient.
func (l *ChunkLayer) UpdatePreClient() {
	for pos, c := range l.chunks {
		if !c.state.removed() {
			c.updatePreClient(pos, &l.info, &l.messages)
		}
	}
	l.messages.Ready()
}

// UpdatePostClient discards this tick's messages and drops the chunks
// removed during the tick.
func (l *ChunkLayer) UpdatePostClient() {
	l.messages.Unready()
	for pos, c := range l.chunks {
		switch c.state {
		case chunkAddedRemoved, chunkRemoved:
			delete(l.chunks, pos)
		case chunkAdded, chunkOverwrite:
			c.state = chunkNormal
		}
	}
}
