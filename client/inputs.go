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
	"FlowyLayer/world"
	pk "github.com/Tnze/go-mc/net/packet"
)

// updateInputs runs f with the inputs of the player locked. The tick reads
// them under the same lock.
func (c *Client) updateInputs(f func(in *world.Inputs)) {
	c.Inputs.Lock()
	defer c.Inputs.Unlock()
	f(c.Inputs)
}

func clientInformation(p pk.Packet, c *Client) error {
	var info world.ClientInfo
	if err := p.Scan(&info); err != nil {
		return err
	}
	c.updateInputs(func(in *world.Inputs) { in.ClientInfo = info })
	return nil
}

func clientAcceptTeleportation(p pk.Packet, c *Client) error {
	var id pk.VarInt
	if err := p.Scan(&id); err != nil {
		return err
	}
	c.updateInputs(func(in *world.Inputs) { in.TeleportID = int32(id) })
	return nil
}

// The four move packets carry a subset of position, look and on-ground.

func clientMovePlayerPos(p pk.Packet, c *Client) error {
	var x, y, z pk.Double
	var onGround pk.Boolean
	if err := p.Scan(&x, &y, &z, &onGround); err != nil {
		return err
	}
	c.updateInputs(func(in *world.Inputs) {
		in.Position = world.Position{float64(x), float64(y), float64(z)}
		in.OnGround = bool(onGround)
	})
	return nil
}

func clientMovePlayerPosRot(p pk.Packet, c *Client) error {
	var x, y, z pk.Double
	var yaw, pitch pk.Float
	var onGround pk.Boolean
	if err := p.Scan(&x, &y, &z, &yaw, &pitch, &onGround); err != nil {
		return err
	}
	c.updateInputs(func(in *world.Inputs) {
		in.Position = world.Position{float64(x), float64(y), float64(z)}
		in.Rotation = world.Rotation{float32(yaw), float32(pitch)}
		in.OnGround = bool(onGround)
	})
	return nil
}

func clientMovePlayerRot(p pk.Packet, c *Client) error {
	var yaw, pitch pk.Float
	var onGround pk.Boolean
	if err := p.Scan(&yaw, &pitch, &onGround); err != nil {
		return err
	}
	c.updateInputs(func(in *world.Inputs) {
		in.Rotation = world.Rotation{float32(yaw), float32(pitch)}
		in.OnGround = bool(onGround)
	})
	return nil
}

func clientMovePlayerStatusOnly(p pk.Packet, c *Client) error {
	var onGround pk.Boolean
	if err := p.Scan(&onGround); err != nil {
		return err
	}
	c.updateInputs(func(in *world.Inputs) { in.OnGround = bool(onGround) })
	return nil
}

// clientSwing queues an arm swing, shown to the other players on the next
// tick.
func clientSwing(p pk.Packet, c *Client) error {
	var hand pk.VarInt
	if err := p.Scan(&hand); err != nil {
		return err
	}
	animation := world.AnimationSwingMainArm
	if hand != 0 {
		animation = world.AnimationSwingOffHand
	}
	c.updateInputs(func(in *world.Inputs) { in.Animations |= 1 << animation })
	return nil
}

// Vehicles are not simulated.
func clientMoveVehicle(pk.Packet, *Client) error { return nil }
