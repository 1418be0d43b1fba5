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


package client

import (
	"bytes"
	"encoding/binary"
	"io"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"FlowyLayer/world"
	"github.com/Tnze/go-mc/chat"
	"github.com/Tnze/go-mc/chat/sign"
	"github.com/Tnze/go-mc/data/packetid"
	pk "github.com/Tnze/go-mc/net/packet"
)

// SendPacket frames one packet and queues it.
func (c *Client) SendPacket(id packetid.ClientboundPacketID, fields ...pk.FieldEncoder) {
	var buf bytes.Buffer
	world.NewPacketWriter(&buf, c.threshold).WritePacket(id, fields...)
	c.queue.Push(outgoing{data: buf.Bytes()})
}

// WritePacketBytes queues packets framed by the world.
func (c *Client) WritePacketBytes(b []byte) {
	c.queue.Push(outgoing{data: b})
}

func (c *Client) SendKeepAlive(id int64) {
	c.SendPacket(packetid.ClientboundKeepAlive, pk.Long(id))
}

// SendDisconnect sends the reason and closes the connection once it is
// written.
func (c *Client) SendDisconnect(reason chat.Message) {
	c.log.Debug("Disconnect player", zap.String("reason", reason.ClearString()))
	var buf bytes.Buffer
	world.NewPacketWriter(&buf, c.threshold).WritePacket(packetid.ClientboundDisconnect, reason)
	c.queue.Push(outgoing{data: buf.Bytes(), disconnect: true})
}

func (c *Client) SendLogin(w *world.World, p *world.Player) {
	hashedSeed := w.HashedSeed()
	c.SendPacket(
		packetid.ClientboundLogin,
		pk.Int(p.EntityID),
		pk.Boolean(false), // Is Hardcore
		pk.Byte(p.Gamemode),
		pk.Byte(-1), // Previous game mode
		pk.Array([]pk.Identifier{
			pk.Identifier(w.Name()),
		}),
		pk.NBT(world.NetworkCodec),
		pk.Identifier("minecraft:overworld"),
		pk.Identifier(w.Name()),
		pk.Long(binary.BigEndian.Uint64(hashedSeed[:8])),
		pk.VarInt(0),              // Max players (ignored by client)
		pk.VarInt(p.ViewDistance), // View Distance
		pk.VarInt(p.ViewDistance), // Simulation Distance
		pk.Boolean(false),         // Reduced Debug Info
		pk.Boolean(false),         // Enable respawn screen
		pk.Boolean(false),         // Is Debug
		pk.Boolean(false),         // Is Flat
		pk.Boolean(false),         // Has Last Death Location
	)
}

func (c *Client) SendServerData(motd *chat.Message, favIcon string, enforceSecureProfile bool) {
	c.SendPacket(
		packetid.ClientboundServerData,
		motd,
		pk.Option[pk.String, *pk.String]{
			Has: favIcon != "",
			Val: pk.String(favIcon),
		},
		pk.Boolean(enforceSecureProfile),
	)
}

const (
	PlayerInfoAddPlayer = iota
	PlayerInfoInitializeChat
	PlayerInfoUpdateGameMode
	PlayerInfoUpdateListed
	PlayerInfoUpdateLatency
	PlayerInfoUpdateDisplayName
	PlayerInfoEnumGuard
)

func NewPlayerInfoAction(actions ...int) pk.FixedBitSet {
	enumSet := pk.NewFixedBitSet(PlayerInfoEnumGuard)
	for _, action := range actions {
		enumSet.Set(action, true)
	}
	return enumSet
}

// playerInfoEntries is the body of the player info update packet.
type playerInfoEntries struct {
	actions pk.FixedBitSet
	players []*world.Player
}

func (e playerInfoEntries) WriteTo(w io.Writer) (n int64, err error) {
	fields := pk.Tuple{&e.actions, pk.VarInt(len(e.players))}
	for _, player := range e.players {
		fields = append(fields, pk.UUID(player.UUID))
		if e.actions.Get(PlayerInfoAddPlayer) {
			fields = append(fields, pk.String(player.Name), pk.Array(player.Properties))
		}
		if e.actions.Get(PlayerInfoInitializeChat) {
			panic("not yet support InitializeChat")
		}
		if e.actions.Get(PlayerInfoUpdateGameMode) {
			fields = append(fields, pk.VarInt(player.Gamemode))
		}
		if e.actions.Get(PlayerInfoUpdateListed) {
			fields = append(fields, pk.Boolean(true))
		}
		if e.actions.Get(PlayerInfoUpdateLatency) {
			fields = append(fields, pk.VarInt(player.Latency().Milliseconds()))
		}
		if e.actions.Get(PlayerInfoUpdateDisplayName) {
			panic("not yet support DisplayName")
		}
	}
	return fields.WriteTo(w)
}

func (c *Client) SendPlayerInfoUpdate(actions pk.FixedBitSet, players []*world.Player) {
	c.SendPacket(packetid.ClientboundPlayerInfoUpdate, playerInfoEntries{actions: actions, players: players})
}

func (c *Client) SendPlayerInfoRemove(players []*world.Player) {
	ids := make([]pk.UUID, len(players))
	for i, p := range players {
		ids[i] = pk.UUID(p.UUID)
	}
	c.SendPacket(packetid.ClientboundPlayerInfoRemove, pk.Array(ids))
}

var teleportCounter atomic.Int32

func (c *Client) SendPlayerPosition(pos [3]float64, rot [2]float32) (teleportID int32) {
	teleportID = teleportCounter.Add(1)
	c.SendPacket(
		packetid.ClientboundPlayerPosition,
		pk.Double(pos[0]),
		pk.Double(pos[1]),
		pk.Double(pos[2]),
		pk.Float(rot[0]),
		pk.Float(rot[1]),
		pk.Byte(0), // Absolute
		pk.VarInt(teleportID),
	)
	return
}

func (c *Client) SendSetDefaultSpawnPosition(xyz [3]int32, angle float32) {
	c.SendPacket(
		packetid.ClientboundSetDefaultSpawnPosition,
		pk.Position{X: int(xyz[0]), Y: int(xyz[1]), Z: int(xyz[2])},
		pk.Float(angle),
	)
}

func (c *Client) SendSystemChat(msg chat.Message, overlay bool) {
	c.SendPacket(packetid.ClientboundSystemChat, msg, pk.Boolean(overlay))
}

func (c *Client) SendPlayerChat(
	sender uuid.UUID,
	index int32,
	signature pk.Option[sign.Signature, *sign.Signature],
	body *sign.PackedMessageBody,
	unsignedContent *chat.Message,
	filter *sign.FilterMask,
	chatType *chat.Type,
) {
	c.SendPacket(
		packetid.ClientboundPlayerChat,
		pk.UUID(sender),
		pk.VarInt(index),
		signature,
		body,
		pk.OptionEncoder[*chat.Message]{
			Has: unsignedContent != nil,
			Val: unsignedContent,
		},
		filter,
		chatType,
	)
}
