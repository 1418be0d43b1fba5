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
	"encoding/binary"
	"maps"
	"slices"

	"go.uber.org/zap"
)

// clientView is what a client was sent up to the end of the last tick.
type clientView struct {
	chunks ChunkView
	layers map[LayerID]struct{}
	valid  bool
}

// updateClient sends one tick worth of packets to a client. Messages are
// read through the view of the last tick, then the client is moved to
// its current view.
func (w *World) updateClient(c Client, p *Player) {
	p.out.Reset()
	pw := NewPacketWriter(&p.out, w.chunks.info.Threshold)

	old := p.sent
	if old.valid {
		w.flushChunkLayer(pw, p, old.chunks)
		w.flushEntityLayers(pw, p, old)
	}

	next := clientView{
		chunks: p.currentView(),
		layers: make(map[LayerID]struct{}, len(p.Layers)),
		valid:  true,
	}
	for id := range p.Layers {
		if l := w.entityLayers[id]; l != nil && !l.Despawned() {
			next.layers[id] = struct{}{}
		}
	}
	w.changeView(pw, p, old, next)
	p.sent = next

	if p.out.Len() > 0 {
		c.WritePacketBytes(slices.Clone(p.out.Bytes()))
	}
}

func (w *World) flushChunkLayer(pw *PacketWriter, p *Player, view ChunkView) {
	l := w.chunks
	self := p.Handle()
	l.messages.IterGlobal(func(tag chunkGlobal, b []byte) {
		if tag.kind == chunkPacket || tag.except != self {
			pw.WritePacketBytes(b)
		}
	})

	at := BlockPosOf(p.Position)
	var biomes []chunkBiomes
	l.messages.QueryLocal(view, func(tag chunkLocal, b []byte) {
		switch tag.kind {
		case chunkPacketAt:
			pw.WritePacketBytes(b)
		case chunkPacketAtExcept:
			if tag.except != self {
				pw.WritePacketBytes(b)
			}
		case chunkRadiusAt:
			if tag.center.distanceSq(at) <= tag.radiusSq {
				pw.WritePacketBytes(b)
			}
		case chunkRadiusAtExcept:
			if tag.except != self && tag.center.distanceSq(at) <= tag.radiusSq {
				pw.WritePacketBytes(b)
			}
		case chunkChangeBiome:
			biomes = append(biomes, chunkBiomes{pos: tag.pos, data: b})
		case chunkChangeState:
			w.changeChunkState(pw, tag.pos, b)
		}
	})
	if len(biomes) > 0 {
		writeChunksBiomes(pw, biomes)
	}
}

// changeChunkState applies the load, unload and overwrite events of one
// chunk to a client that had it in view for the whole tick.
func (w *World) changeChunkState(pw *PacketWriter, pos ChunkPos, states []byte) {
	first, last := states[0], states[len(states)-1]
	switch {
	case first == chunkStateLoad && last == chunkStateUnload:
		// Loaded and unloaded within the tick, the client never had it.
	case last == chunkStateUnload:
		writeForgetLevelChunk(pw, pos)
	default:
		c := w.chunks.Chunk(pos)
		if c == nil {
			w.log.Panic("Chunk state change for a missing chunk", zap.Stringer("pos", pos))
		}
		c.WriteInitPackets(pw, pos, &w.chunks.info)
		if first == chunkStateLoad {
			c.IncViewerCount()
		}
	}
}

func (w *World) flushEntityLayers(pw *PacketWriter, p *Player, old clientView) {
	self := p.Handle()
	at := BlockPosOf(p.Position)
	for _, id := range slices.Sorted(maps.Keys(old.layers)) {
		l := w.entityLayers[id]
		if l == nil {
			continue
		}
		l.messages.IterGlobal(func(tag entityGlobal, b []byte) {
			switch tag.kind {
			case entityPacket:
				pw.WritePacketBytes(b)
			case entityPacketExcept:
				if tag.except != self {
					pw.WritePacketBytes(b)
				}
			case entityDespawnLayer:
				// The entities are removed with the layer by changeView.
				delete(p.Layers, id)
			}
		})

		l.messages.QueryLocal(old.chunks, func(tag entityLocal, b []byte) {
			switch tag.kind {
			case entityDespawn:
				if _, ok := old.layers[tag.layer]; !ok || !old.chunks.Contains(tag.other) {
					p.removeEntities(b)
				}
			case entityDespawnTransition:
				if !old.chunks.Contains(tag.other) {
					p.removeEntities(b)
				}
			case entitySpawn:
				if _, ok := old.layers[tag.layer]; !ok || !old.chunks.Contains(tag.other) {
					w.spawnEntities(pw, p, b)
				}
			case entitySpawnTransition:
				if !old.chunks.Contains(tag.other) {
					w.spawnEntities(pw, p, b)
				}
			case entityPacketAt:
				pw.WritePacketBytes(b)
			case entityPacketAtExcept:
				if tag.except != self {
					pw.WritePacketBytes(b)
				}
			case entityRadiusAt:
				if tag.center.distanceSq(at) <= tag.radiusSq {
					pw.WritePacketBytes(b)
				}
			case entityRadiusAtExcept:
				if tag.except != self && tag.center.distanceSq(at) <= tag.radiusSq {
					pw.WritePacketBytes(b)
				}
			}
		})
		p.flushRemoved(pw)
	}
}

// releaseClient gives back the viewer counts held by a client that left.
// It runs between UpdatePreClient and UpdatePostClient, so chunks inserted
// during the tick are still announced by a LOAD the client never read.
func (w *World) releaseClient(p *Player) {
	old := p.sent
	if !old.valid {
		return
	}
	unread := make(map[ChunkPos]struct{})
	w.chunks.messages.QueryLocal(old.chunks, func(tag chunkLocal, b []byte) {
		if tag.kind == chunkChangeState && b[0] == chunkStateLoad {
			unread[tag.pos] = struct{}{}
		}
	})
	old.chunks.ForEach(func(pos ChunkPos) bool {
		if _, ok := unread[pos]; ok {
			return true
		}
		if c := w.chunks.Chunk(pos); c != nil {
			c.DecViewerCount()
		}
		return true
	})
	p.sent = clientView{}
}

// changeView moves a client from the chunks and layers it was sent to the
// ones it sees now.
func (w *World) changeView(pw *PacketWriter, p *Player, old, next clientView) {
	info := &w.chunks.info

	if !old.valid || old.chunks.Pos != next.chunks.Pos {
		writeSetChunkCacheCenter(pw, next.chunks.Pos)
	}

	if old.valid {
		// Layers no longer seen lose all their entities.
		for _, id := range slices.Sorted(maps.Keys(old.layers)) {
			if _, ok := next.layers[id]; ok {
				continue
			}
			if l := w.entityLayers[id]; l != nil {
				old.chunks.ForEach(func(pos ChunkPos) bool {
					p.removeEntityHandles(w.entities, l.EntitiesAt(pos))
					return true
				})
			}
		}
		old.chunks.Diff(next.chunks, func(pos ChunkPos) {
			if c := w.chunks.Chunk(pos); c != nil {
				writeForgetLevelChunk(pw, pos)
				c.DecViewerCount()
			}
			for id := range old.layers {
				if _, ok := next.layers[id]; !ok {
					continue
				}
				if l := w.entityLayers[id]; l != nil {
					p.removeEntityHandles(w.entities, l.EntitiesAt(pos))
				}
			}
		})
		p.flushRemoved(pw)
	}

	entering := func(pos ChunkPos) {
		if c := w.chunks.Chunk(pos); c != nil {
			c.WriteInitPackets(pw, pos, info)
			c.IncViewerCount()
		}
	}
	if old.valid {
		next.chunks.Diff(old.chunks, entering)
	} else {
		next.chunks.ForEach(func(pos ChunkPos) bool {
			entering(pos)
			return true
		})
	}

	for _, id := range slices.Sorted(maps.Keys(next.layers)) {
		l := w.entityLayers[id]
		if l == nil {
			continue
		}
		if _, ok := old.layers[id]; ok && old.valid {
			// Entities of a layer seen before only change with the chunks.
			next.chunks.Diff(old.chunks, func(pos ChunkPos) {
				w.spawnEntityHandles(pw, p, l.EntitiesAt(pos))
			})
			continue
		}
		next.chunks.ForEach(func(pos ChunkPos) bool {
			w.spawnEntityHandles(pw, p, l.EntitiesAt(pos))
			return true
		})
	}
}

// removeEntities queues the protocol ids of a despawn payload.
func (p *Player) removeEntities(b []byte) {
	for ; len(b) >= 4; b = b[4:] {
		if id := int32(binary.LittleEndian.Uint32(b)); id != p.EntityID {
			p.removeBuf = append(p.removeBuf, id)
		}
	}
}

func (p *Player) removeEntityHandles(entities *Entities, handles []EntityHandle) {
	for _, h := range handles {
		if e := entities.Get(h); e != nil && h != p.Handle() {
			p.removeBuf = append(p.removeBuf, e.EntityID)
		}
	}
}

// flushRemoved sends the queued entity removals. It runs before any
// spawn so a reused id is never spawned twice.
func (p *Player) flushRemoved(pw *PacketWriter) {
	if len(p.removeBuf) > 0 {
		writeRemoveEntities(pw, p.removeBuf)
		p.removeBuf = p.removeBuf[:0]
	}
}

// spawnEntities spawns the entities of a spawn payload.
func (w *World) spawnEntities(pw *PacketWriter, p *Player, b []byte) {
	for ; len(b) >= 8; b = b[8:] {
		h := EntityHandle(binary.LittleEndian.Uint64(b))
		w.spawnEntity(pw, p, h)
	}
}

func (w *World) spawnEntityHandles(pw *PacketWriter, p *Player, handles []EntityHandle) {
	for _, h := range handles {
		w.spawnEntity(pw, p, h)
	}
}

func (w *World) spawnEntity(pw *PacketWriter, p *Player, h EntityHandle) {
	if h == p.Handle() {
		return
	}
	e := w.entities.Get(h)
	if e == nil || e.despawned {
		return
	}
	p.flushRemoved(pw)
	e.writeInitPackets(pw)
}
