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
	"math"
	"slices"
	"sync/atomic"

	"github.com/Tnze/go-mc/data/packetid"
	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/google/uuid"

	"FlowyLayer/world/entity"
)

var entityCounter atomic.Int32

// NewEntityID returns a protocol entity id that is unique for the lifetime
// of the process.
func NewEntityID() int32 {
	return entityCounter.Add(1)
}

// EntityHandle identifies an entity in an Entities store. The zero handle
// is never assigned.
type EntityHandle uint64

// LayerID identifies an entity layer. The zero id means no layer.
type LayerID uint32

// Position is the x, y, z position of an entity.
type Position [3]float64

// IsValid reports whether every coordinate is finite.
func (p *Position) IsValid() bool {
	return !math.IsNaN((*p)[0]) && !math.IsNaN((*p)[1]) && !math.IsNaN((*p)[2]) &&
		!math.IsInf((*p)[0], 0) && !math.IsInf((*p)[1], 0) && !math.IsInf((*p)[2], 0)
}

// Rotation is the yaw and pitch of an entity in degrees.
type Rotation [2]float32

// Velocity is measured in blocks per tick.
type Velocity [3]float64

// Entity is the part of an entity that clients see.
//
// Position, rotation and layer may be changed freely during a tick. The
// values of the previous tick are kept in the Old fields, which the entity
// layers use to find what changed.
type Entity struct {
	handle EntityHandle

	EntityID int32
	UUID     uuid.UUID
	// Kind is the entity type id. It is not used for players.
	Kind int32
	// Player entities are spawned with the add player packet.
	Player bool
	// Client is set when the entity is controlled by a connected client,
	// which never receives its own updates.
	Client bool

	Position    Position
	OldPosition Position
	Rotation    Rotation
	OldRotation Rotation
	HeadYaw     float32
	OldHeadYaw  float32
	OnGround    bool

	Layer    LayerID
	OldLayer LayerID

	velocity        Velocity
	velocityChanged bool

	metadata        entity.MetadataSet
	changedMetadata entity.MetadataSet

	statuses   uint64
	animations uint8

	despawned bool
}

// Handle returns the handle of the entity in its store.
func (e *Entity) Handle() EntityHandle { return e.handle }

// Despawned reports whether the entity will be removed after this tick.
func (e *Entity) Despawned() bool { return e.despawned }

func (e *Entity) Velocity() Velocity { return e.velocity }

func (e *Entity) SetVelocity(v Velocity) {
	e.velocity = v
	e.velocityChanged = true
}

// SetMetadata sets one tracked data field.
func (e *Entity) SetMetadata(index byte, v entity.MetadataValue) {
	e.metadata.Set(index, v)
	e.changedMetadata.Set(index, v)
}

// TriggerStatus plays an entity event, such as the hurt animation.
func (e *Entity) TriggerStatus(status uint8) { e.statuses |= 1 << (status & 63) }

// Animation ids of the Animate packet.
const (
	AnimationSwingMainArm uint8 = 0
	AnimationSwingOffHand uint8 = 3
)

// TriggerAnimation plays an entity animation, such as swinging an arm.
func (e *Entity) TriggerAnimation(animation uint8) { e.animations |= 1 << (animation & 7) }

// angle converts degrees to the protocol's 1/256 of a turn.
func angle(deg float32) pk.Angle {
	return pk.Angle(int8(int32(math.Floor(float64(deg) * 256 / 360))))
}

// velocityUnits converts blocks per tick to 1/8000 blocks per tick.
func velocityUnits(v Velocity) [3]pk.Short {
	var s [3]pk.Short
	for i := range v {
		s[i] = pk.Short(math.Max(math.Min(v[i]*8000, math.MaxInt16), math.MinInt16))
	}
	return s
}

// writeInitPackets spawns the entity for a client.
func (e *Entity) writeInitPackets(w *PacketWriter) {
	id := pk.VarInt(e.EntityID)
	if e.Player {
		w.WritePacket(
			packetid.ClientboundAddPlayer,
			id,
			pk.UUID(e.UUID),
			pk.Double(e.Position[0]),
			pk.Double(e.Position[1]),
			pk.Double(e.Position[2]),
			angle(e.Rotation[0]),
			angle(e.Rotation[1]),
		)
		w.WritePacket(packetid.ClientboundRotateHead, id, angle(e.HeadYaw))
	} else {
		v := velocityUnits(e.velocity)
		w.WritePacket(
			packetid.ClientboundAddEntity,
			id,
			pk.UUID(e.UUID),
			pk.VarInt(e.Kind),
			pk.Double(e.Position[0]),
			pk.Double(e.Position[1]),
			pk.Double(e.Position[2]),
			angle(e.Rotation[1]),
			angle(e.Rotation[0]),
			angle(e.HeadYaw),
			pk.VarInt(0), // Object data
			v[0], v[1], v[2],
		)
	}
	if len(e.metadata) > 0 {
		w.WritePacket(packetid.ClientboundSetEntityData, id, e.metadata)
	}
}

// writeUpdatePackets sends what changed during the tick to clients that
// already see the entity.
func (e *Entity) writeUpdatePackets(w *PacketWriter) {
	id := pk.VarInt(e.EntityID)

	delta := [3]float64{
		e.Position[0] - e.OldPosition[0],
		e.Position[1] - e.OldPosition[1],
		e.Position[2] - e.OldPosition[2],
	}
	needsTeleport := max(math.Abs(delta[0]), math.Abs(delta[1]), math.Abs(delta[2])) >= 8
	changedPosition := e.Position != e.OldPosition
	changedRotation := e.Rotation != e.OldRotation

	relative := func(i int) pk.Short { return pk.Short(delta[i] * 4096) }
	switch {
	case changedPosition && !needsTeleport && changedRotation:
		w.WritePacket(
			packetid.ClientboundMoveEntityPosRot,
			id,
			relative(0), relative(1), relative(2),
			angle(e.Rotation[0]),
			angle(e.Rotation[1]),
			pk.Boolean(e.OnGround),
		)
	default:
		if changedPosition && !needsTeleport {
			w.WritePacket(
				packetid.ClientboundMoveEntityPos,
				id,
				relative(0), relative(1), relative(2),
				pk.Boolean(e.OnGround),
			)
		}
		if changedRotation {
			w.WritePacket(
				packetid.ClientboundMoveEntityRot,
				id,
				angle(e.Rotation[0]),
				angle(e.Rotation[1]),
				pk.Boolean(e.OnGround),
			)
		}
	}

	if needsTeleport {
		w.WritePacket(
			packetid.ClientboundTeleportEntity,
			id,
			pk.Double(e.Position[0]),
			pk.Double(e.Position[1]),
			pk.Double(e.Position[2]),
			angle(e.Rotation[0]),
			angle(e.Rotation[1]),
			pk.Boolean(e.OnGround),
		)
	}

	if e.velocityChanged {
		v := velocityUnits(e.velocity)
		w.WritePacket(packetid.ClientboundSetEntityMotion, id, v[0], v[1], v[2])
	}

	if e.HeadYaw != e.OldHeadYaw {
		w.WritePacket(packetid.ClientboundRotateHead, id, angle(e.HeadYaw))
	}

	if len(e.changedMetadata) > 0 {
		w.WritePacket(packetid.ClientboundSetEntityData, id, e.changedMetadata)
	}

	for i := 0; i < 64; i++ {
		if e.statuses>>i&1 == 1 {
			w.WritePacket(packetid.ClientboundEntityEvent, pk.Int(e.EntityID), pk.Byte(i))
		}
	}
	for i := 0; i < 8; i++ {
		if e.animations>>i&1 == 1 {
			w.WritePacket(packetid.ClientboundAnimate, id, pk.UnsignedByte(i))
		}
	}
}

// Entities stores every entity of a world by handle.
type Entities struct {
	next     EntityHandle
	entities map[EntityHandle]*Entity
}

func NewEntities() *Entities {
	return &Entities{entities: make(map[EntityHandle]*Entity)}
}

// Spawn adds an entity to the store. It is not in any layer until the
// next call to ChangeEntityPositions. Missing ids and UUIDs are generated.
func (s *Entities) Spawn(e *Entity) EntityHandle {
	s.next++
	e.handle = s.next
	if e.EntityID == 0 {
		e.EntityID = NewEntityID()
	}
	if e.UUID == uuid.Nil {
		e.UUID = uuid.New()
	}
	e.OldPosition = e.Position
	e.OldRotation = e.Rotation
	e.OldHeadYaw = e.HeadYaw
	e.OldLayer = 0
	s.entities[e.handle] = e
	return e.handle
}

// Get returns the entity with handle h, or nil.
func (s *Entities) Get(h EntityHandle) *Entity { return s.entities[h] }

// Despawn marks the entity for removal at the end of the tick.
func (s *Entities) Despawn(h EntityHandle) {
	if e, ok := s.entities[h]; ok {
		e.despawned = true
	}
}

func (s *Entities) Len() int { return len(s.entities) }

// sorted returns every entity ordered by handle, which is spawn order.
func (s *Entities) sorted() []*Entity {
	list := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		list = append(list, e)
	}
	slices.SortFunc(list, func(a, b *Entity) int { return cmp.Compare(a.handle, b.handle) })
	return list
}

// clearChanges makes the current state the old state and drops despawned
// entities. It runs after the clients are updated.
func (s *Entities) clearChanges() {
	for h, e := range s.entities {
		if e.despawned {
			delete(s.entities, h)
			continue
		}
		e.OldPosition = e.Position
		e.OldRotation = e.Rotation
		e.OldHeadYaw = e.HeadYaw
		e.OldLayer = e.Layer
		e.velocityChanged = false
		e.changedMetadata = e.changedMetadata[:0]
		e.statuses = 0
		e.animations = 0
	}
}
