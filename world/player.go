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
	"io"
	"sync"
	"time"

	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/Tnze/go-mc/yggdrasil/user"
)

func (i *ClientInfo) ReadFrom(r io.Reader) (n int64, err error) {
	return pk.Tuple{
		(*pk.String)(&i.Locale),
		(*pk.Byte)(&i.ViewDistance),
		(*pk.VarInt)(&i.ChatMode),
		(*pk.Boolean)(&i.ChatColors),
		(*pk.UnsignedByte)(&i.DisplayedSkinParts),
		(*pk.VarInt)(&i.MainHand),
		(*pk.Boolean)(&i.EnableTextFiltering),
		(*pk.Boolean)(&i.AllowServerListings),
	}.ReadFrom(r)
}

// Player is a connected client and the entity it controls.
type Player struct {
	*Entity
	Name       string
	PubKey     *user.PublicKey
	Properties []user.Property

	lastChatTimestamp time.Time
	lastChatSignature []byte

	ViewDistance int32
	Gamemode     int32
	// Layers is the set of entity layers the client sees. It may be
	// changed between ticks; the difference is sent on the next flush.
	Layers map[LayerID]struct{}

	sent      clientView
	chunkView ChunkView
	viewNode  *playerViewNode
	teleport  *TeleportRequest

	out       bytes.Buffer
	removeBuf []int32

	Inputs Inputs
}

// NewPlayer returns a player entity with its own protocol id, standing
// at pos and seeing the main entity layer.
func NewPlayer(name string, pos Position, rot Rotation) *Player {
	return &Player{
		Entity: &Entity{
			EntityID: NewEntityID(),
			Player:   true,
			Client:   true,
			Position: pos,
			Rotation: rot,
			HeadYaw:  rot[0],
		},
		Name:         name,
		ViewDistance: 10,
		Layers:       map[LayerID]struct{}{MainLayer: {}},
	}
}

func (p *Player) chunkPosition() ChunkPos { return ChunkPosOf(p.Position) }

func (p *Player) chunkRadius() int32 { return p.ViewDistance }

func (p *Player) currentView() ChunkView {
	return ChunkView{Pos: p.chunkPosition(), Dist: p.ViewDistance}
}

// viewBox covers every chunk of a view. Chunk centers sit on integer
// coordinates, so the half chunk margin keeps them strictly inside.
func viewBox(v ChunkView) aabb2d {
	lower, upper := v.Bounds()
	return aabb2d{
		Upper: vec2d{float64(upper.X) + 0.5, float64(upper.Z) + 0.5},
		Lower: vec2d{float64(lower.X) - 0.5, float64(lower.Z) - 0.5},
	}
}

// Latency returns the last measured round trip time of the client.
func (p *Player) Latency() time.Duration {
	p.Inputs.Lock()
	defer p.Inputs.Unlock()
	return p.Inputs.Latency
}

type TeleportRequest struct {
	ID int32
	Position
	Rotation
}

// Inputs are written by the connection goroutine and read by the tick.
type Inputs struct {
	sync.Mutex
	ClientInfo
	Position   Position
	Rotation   Rotation
	OnGround   bool
	Latency    time.Duration
	TeleportID int32
	// Animations is a bit set of animations requested since the last tick.
	Animations uint8
}

type ClientInfo struct {
	Locale              string
	ViewDistance        int8
	ChatMode            int32
	ChatColors          bool
	DisplayedSkinParts  byte
	MainHand            int32
	EnableTextFiltering bool
	AllowServerListings bool
}
