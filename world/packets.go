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
	"io"

	"github.com/Tnze/go-mc/data/packetid"
	"github.com/Tnze/go-mc/level/block"
	pk "github.com/Tnze/go-mc/net/packet"
)

func writeBlockUpdate(w *PacketWriter, pos BlockPos, s block.StateID) {
	w.WritePacket(packetid.ClientboundBlockUpdate, pos.packet(), pk.VarInt(s))
}

// writeSectionBlocksUpdate sends the changes of one section. sectY is the
// section coordinate in the world, not the index in the chunk.
func writeSectionBlocksUpdate(w *PacketWriter, pos ChunkPos, sectY int32, entries []pk.VarLong) {
	sectPos := int64(pos.X)&0x3FFFFF<<42 | int64(pos.Z)&0x3FFFFF<<20 | int64(sectY)&0xFFFFF
	w.WritePacket(
		packetid.ClientboundSectionBlocksUpdate,
		pk.Long(sectPos),
		pk.Boolean(true), // Suppress light updates
		pk.Array(entries),
	)
}

func writeBlockEntityData(w *PacketWriter, pos BlockPos, kind block.EntityType, data Compound) {
	w.WritePacket(
		packetid.ClientboundBlockEntityData,
		pos.packet(),
		pk.VarInt(kind),
		pk.NBT(data),
	)
}

func writeForgetLevelChunk(w *PacketWriter, pos ChunkPos) {
	w.WritePacket(packetid.ClientboundForgetLevelChunk, pos)
}

func writeSetChunkCacheCenter(w *PacketWriter, pos ChunkPos) {
	w.WritePacket(packetid.ClientboundSetChunkCacheCenter, pk.VarInt(pos.X), pk.VarInt(pos.Z))
}

// chunkBiomes is one entry of the chunks biomes packet. data holds the
// encoded biome containers of every section.
type chunkBiomes struct {
	pos  ChunkPos
	data []byte
}

func (c chunkBiomes) WriteTo(w io.Writer) (int64, error) {
	return pk.Tuple{pk.Int(c.pos.Z), pk.Int(c.pos.X), pk.ByteArray(c.data)}.WriteTo(w)
}

func writeChunksBiomes(w *PacketWriter, chunks []chunkBiomes) {
	w.WritePacket(packetid.ClientboundChunksBiomes, pk.Array(chunks))
}

// chunkBlockEntity is one block entity of the chunk data packet.
type chunkBlockEntity struct {
	x, z int
	y    int32
	kind block.EntityType
	data Compound
}

func (b chunkBlockEntity) WriteTo(w io.Writer) (int64, error) {
	return pk.Tuple{
		pk.Byte(b.x<<4 | b.z),
		pk.Short(b.y),
		pk.VarInt(b.kind),
		pk.NBT(b.data),
	}.WriteTo(w)
}

// fullBrightLight is the light data of the chunk data packet: full sky
// light in every section and no block light.
type fullBrightLight struct {
	sections int
}

func (l fullBrightLight) WriteTo(w io.Writer) (int64, error) {
	// The light sections extend one past each end of the chunk.
	n := l.sections + 2
	skyMask := make(pk.BitSet, (n+63)/64)
	skyLight := make([]pk.ByteArray, n)
	full := make(pk.ByteArray, 2048)
	for i := range full {
		full[i] = 0xFF
	}
	for i := 0; i < n; i++ {
		skyMask.Set(i, true)
		skyLight[i] = full
	}
	return pk.Tuple{
		pk.Boolean(true), // Trust edges
		skyMask,
		pk.BitSet{}, // Block light mask
		pk.BitSet{}, // Empty sky light mask
		pk.BitSet{}, // Empty block light mask
		pk.Array(skyLight),
		pk.Array([]pk.ByteArray{}),
	}.WriteTo(w)
}

func writeRemoveEntities(w *PacketWriter, ids []int32) {
	entityIDs := make([]pk.VarInt, len(ids))
	for i, id := range ids {
		entityIDs[i] = pk.VarInt(id)
	}
	w.WritePacket(packetid.ClientboundRemoveEntities, pk.Array(entityIDs))
}
