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
	"encoding/binary"
	"maps"
	"slices"

	"github.com/Tnze/go-mc/data/packetid"
	pk "github.com/Tnze/go-mc/net/packet"
)

type entityGlobalKind uint8

const (
	entityPacket entityGlobalKind = iota
	entityPacketExcept
	// entityDespawnLayer tells the viewers that the layer is going away.
	entityDespawnLayer
)

type entityGlobal struct {
	kind   entityGlobalKind
	except EntityHandle
}

func (t entityGlobal) Compare(other entityGlobal) int {
	if c := cmp.Compare(t.kind, other.kind); c != 0 {
		return c
	}
	return cmp.Compare(t.except, other.except)
}

type entityLocalKind uint8

// Despawn kinds sort before spawn kinds so a client never sees a spawn
// for an entity id it has not removed yet.
const (
	// Payload: protocol ids of entities leaving for layer, where they are
	// now in the chunk other. A client seeing both keeps them.
	entityDespawn entityLocalKind = iota
	// Payload: protocol ids of entities moving to the chunk other.
	entityDespawnTransition
	// Payload: handles of entities arriving from the chunk other of layer.
	entitySpawn
	// Payload: handles of entities arriving from the chunk other.
	entitySpawnTransition
	entityPacketAt
	entityPacketAtExcept
	entityRadiusAt
	entityRadiusAtExcept
)

type entityLocal struct {
	kind     entityLocalKind
	pos      ChunkPos
	layer    LayerID
	other    ChunkPos
	center   BlockPos
	radiusSq uint64
	except   EntityHandle
}

func (t entityLocal) ChunkPos() ChunkPos {
	if t.kind == entityRadiusAt || t.kind == entityRadiusAtExcept {
		return t.center.ChunkPos()
	}
	return t.pos
}

func (t entityLocal) Compare(other entityLocal) int {
	if c := cmp.Compare(t.kind, other.kind); c != 0 {
		return c
	}
	if c := t.pos.Compare(other.pos); c != 0 {
		return c
	}
	if c := cmp.Compare(t.layer, other.layer); c != 0 {
		return c
	}
	if c := t.other.Compare(other.other); c != 0 {
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

type entityMessages = Messages[entityGlobal, entityLocal]

// EntityLayer tracks which entities are in which chunk and the messages
// that keep its viewers in sync with them.
type EntityLayer struct {
	id        LayerID
	threshold int
	cells     map[ChunkPos]map[EntityHandle]struct{}
	messages  entityMessages
	despawned bool
}

// NewEntityLayer returns an empty layer. id must not be zero.
func NewEntityLayer(id LayerID, threshold int) *EntityLayer {
	if id == 0 {
		panic("entity layer: zero layer id")
	}
	return &EntityLayer{
		id:        id,
		threshold: threshold,
		cells:     make(map[ChunkPos]map[EntityHandle]struct{}),
	}
}

func (l *EntityLayer) ID() LayerID { return l.id }

// EntitiesAt returns the entities in the chunk at pos, ordered by handle.
func (l *EntityLayer) EntitiesAt(pos ChunkPos) []EntityHandle {
	return slices.Sorted(maps.Keys(l.cells[pos]))
}

// Despawn removes the layer from its viewers at the end of the tick.
func (l *EntityLayer) Despawn() {
	if l.despawned {
		return
	}
	l.despawned = true
	l.messages.SendGlobal(entityGlobal{kind: entityDespawnLayer}, func(*bytes.Buffer) {})
}

// Despawned reports whether Despawn was called.
func (l *EntityLayer) Despawned() bool { return l.despawned }

func (l *EntityLayer) insert(pos ChunkPos, h EntityHandle) {
	cell, ok := l.cells[pos]
	if !ok {
		cell = make(map[EntityHandle]struct{})
		l.cells[pos] = cell
	}
	cell[h] = struct{}{}
}

func (l *EntityLayer) remove(pos ChunkPos, h EntityHandle) {
	cell, ok := l.cells[pos]
	if !ok {
		return
	}
	delete(cell, h)
	if len(cell) == 0 {
		delete(l.cells, pos)
	}
}

func (l *EntityLayer) sendDespawn(tag entityLocal, e *Entity) {
	l.messages.SendLocal(tag, func(w *bytes.Buffer) {
		w.Write(binary.LittleEndian.AppendUint32(nil, uint32(e.EntityID)))
	})
}

func (l *EntityLayer) sendSpawn(tag entityLocal, e *Entity) {
	l.messages.SendLocal(tag, func(w *bytes.Buffer) {
		w.Write(binary.LittleEndian.AppendUint64(nil, uint64(e.handle)))
	})
}

// ChangeEntityPositions moves every entity whose chunk or layer changed
// since the last tick to its new cell, and records the spawn and despawn
// messages for the clients that see the change.
func ChangeEntityPositions(layers map[LayerID]*EntityLayer, entities *Entities) {
	for _, e := range entities.sorted() {
		oldPos, pos := ChunkPosOf(e.OldPosition), ChunkPosOf(e.Position)
		oldLayer, newLayer := layers[e.OldLayer], layers[e.Layer]

		switch {
		case e.despawned:
			if oldLayer != nil {
				oldLayer.remove(oldPos, e.handle)
				oldLayer.sendDespawn(entityLocal{kind: entityDespawn, pos: oldPos}, e)
			}
		case e.Layer != e.OldLayer:
			if oldLayer != nil {
				oldLayer.remove(oldPos, e.handle)
				oldLayer.sendDespawn(entityLocal{kind: entityDespawn, pos: oldPos, layer: e.Layer, other: pos}, e)
			}
			if newLayer != nil {
				newLayer.insert(pos, e.handle)
				newLayer.sendSpawn(entityLocal{kind: entitySpawn, pos: pos, layer: e.OldLayer, other: oldPos}, e)
			}
		case pos != oldPos && newLayer != nil:
			newLayer.remove(oldPos, e.handle)
			newLayer.insert(pos, e.handle)
			newLayer.sendDespawn(entityLocal{kind: entityDespawnTransition, pos: oldPos, other: pos}, e)
			newLayer.sendSpawn(entityLocal{kind: entitySpawnTransition, pos: pos, other: oldPos}, e)
		}
	}
}

// SendEntityUpdateMessages records the update packets of every entity
// in a layer. Updates of a client's own entity are not sent back to it.
//
// Updates are scoped to the layer and chunk the entity was in at the
// start of the tick. Only those viewers already know the entity; the
// viewers of just its new chunk spawn it from its current state. Entities
// that joined their first layer this tick have no viewers to update.
func SendEntityUpdateMessages(layers map[LayerID]*EntityLayer, entities *Entities) {
	for _, l := range layers {
		for _, cell := range l.cells {
			for h := range cell {
				e := entities.Get(h)
				if e == nil {
					panic("entity layer: cell holds a removed entity")
				}
				old := layers[e.OldLayer]
				if old == nil {
					continue
				}
				at := ChunkPosOf(e.OldPosition)
				tag := entityLocal{kind: entityPacketAt, pos: at}
				if e.Client {
					tag = entityLocal{kind: entityPacketAtExcept, pos: at, except: h}
				}
				old.messages.SendLocal(tag, func(w *bytes.Buffer) {
					e.writeUpdatePackets(NewPacketWriter(w, old.threshold))
				})
			}
		}
	}
}

func (l *EntityLayer) writeGlobal(tag entityGlobal, id packetid.ClientboundPacketID, fields []pk.FieldEncoder) {
	l.messages.SendGlobal(tag, func(w *bytes.Buffer) {
		NewPacketWriter(w, l.threshold).WritePacket(id, fields...)
	})
}

func (l *EntityLayer) writeLocal(tag entityLocal, id packetid.ClientboundPacketID, fields []pk.FieldEncoder) {
	l.messages.SendLocal(tag, func(w *bytes.Buffer) {
		NewPacketWriter(w, l.threshold).WritePacket(id, fields...)
	})
}

// WritePacket sends a packet to every viewer of the layer.
func (l *EntityLayer) WritePacket(id packetid.ClientboundPacketID, fields ...pk.FieldEncoder) {
	l.writeGlobal(entityGlobal{kind: entityPacket}, id, fields)
}

// WritePacketExcept sends a packet to every viewer of the layer but except.
func (l *EntityLayer) WritePacketExcept(except EntityHandle, id packetid.ClientboundPacketID, fields ...pk.FieldEncoder) {
	l.writeGlobal(entityGlobal{kind: entityPacketExcept, except: except}, id, fields)
}

// ViewWritePacket sends a packet to the viewers of the chunk at pos.
func (l *EntityLayer) ViewWritePacket(pos ChunkPos, id packetid.ClientboundPacketID, fields ...pk.FieldEncoder) {
	l.writeLocal(entityLocal{kind: entityPacketAt, pos: pos}, id, fields)
}

// ViewExceptWritePacket sends a packet to the viewers of the chunk at pos
// but except.
func (l *EntityLayer) ViewExceptWritePacket(pos ChunkPos, except EntityHandle, id packetid.ClientboundPacketID, fields ...pk.FieldEncoder) {
	l.writeLocal(entityLocal{kind: entityPacketAtExcept, pos: pos, except: except}, id, fields)
}

// RadiusWritePacket sends a packet to the viewers within radius blocks of
// center.
func (l *EntityLayer) RadiusWritePacket(center BlockPos, radius uint32, id packetid.ClientboundPacketID, fields ...pk.FieldEncoder) {
	l.writeLocal(entityLocal{kind: entityRadiusAt, center: center, radiusSq: uint64(radius) * uint64(radius)}, id, fields)
}

// RadiusExceptWritePacket is RadiusWritePacket skipping except.
func (l *EntityLayer) RadiusExceptWritePacket(center BlockPos, radius uint32, except EntityHandle, id packetid.ClientboundPacketID, fields ...pk.FieldEncoder) {
	l.writeLocal(entityLocal{kind: entityRadiusAtExcept, center: center, radiusSq: uint64(radius) * uint64(radius), except: except}, id, fields)
}

// UpdatePreClient makes this tick's messages readable.
func (l *EntityLayer) UpdatePreClient() { l.messages.Ready() }

// UpdatePostClient discards this tick's messages.
func (l *EntityLayer) UpdatePostClient() { l.messages.Unready() }
