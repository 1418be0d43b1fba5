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

// Package entity implements the tracked data (metadata) of entities.
package entity

import (
	"io"
	"slices"

	pk "github.com/Tnze/go-mc/net/packet"
)

// MetadataSet is a list of tracked data fields. It is written as the body
// of the set entity data packet.
type MetadataSet []MetadataField

// MetadataField is one tracked data field.
type MetadataField struct {
	Index byte
	MetadataValue
}

// Set replaces the field with the same index or appends a new one, keeping
// the set ordered by index.
func (m *MetadataSet) Set(index byte, v MetadataValue) {
	i, found := slices.BinarySearchFunc(*m, index, func(f MetadataField, index byte) int {
		return int(f.Index) - int(index)
	})
	if found {
		(*m)[i].MetadataValue = v
		return
	}
	*m = slices.Insert(*m, i, MetadataField{Index: index, MetadataValue: v})
}

func (m MetadataSet) WriteTo(w io.Writer) (n int64, err error) {
	var tmpN int64
	for i := range m {
		tmpN, err = pk.UnsignedByte(m[i].Index).WriteTo(w)
		n += tmpN
		if err != nil {
			return
		}
		tmpN, err = m[i].WriteTo(w)
		n += tmpN
		if err != nil {
			return
		}
	}
	tmpN, err = pk.UnsignedByte(0xFF).WriteTo(w)
	return n + tmpN, err
}

func (m *MetadataField) WriteTo(w io.Writer) (n int64, err error) {
	n1, err := pk.VarInt(m.MetadataValue.TypeID()).WriteTo(w)
	if err != nil {
		return n1, err
	}
	n2, err := m.MetadataValue.WriteTo(w)
	return n1 + n2, err
}

// MetadataValue is the value of a field together with its serializer id.
type MetadataValue interface {
	TypeID() int32
	pk.FieldEncoder
}

type (
	Byte    pk.Byte
	VarInt  pk.VarInt
	Float   pk.Float
	String  pk.String
	Boolean pk.Boolean
	Pose    int32
)

func (Byte) TypeID() int32    { return 0 }
func (VarInt) TypeID() int32  { return 1 }
func (Float) TypeID() int32   { return 3 }
func (String) TypeID() int32  { return 4 }
func (Boolean) TypeID() int32 { return 8 }
func (Pose) TypeID() int32    { return 20 }

func (b Byte) WriteTo(w io.Writer) (int64, error)    { return pk.Byte(b).WriteTo(w) }
func (v VarInt) WriteTo(w io.Writer) (int64, error)  { return pk.VarInt(v).WriteTo(w) }
func (f Float) WriteTo(w io.Writer) (int64, error)   { return pk.Float(f).WriteTo(w) }
func (s String) WriteTo(w io.Writer) (int64, error)  { return pk.String(s).WriteTo(w) }
func (b Boolean) WriteTo(w io.Writer) (int64, error) { return pk.Boolean(b).WriteTo(w) }
func (p Pose) WriteTo(w io.Writer) (int64, error)    { return pk.VarInt(p).WriteTo(w) }

const (
	Standing Pose = iota
	FallFlying
	Sleeping
	Swimming
	SpinAttack
	Crouching
	LongJumping
	Dying
	Croaking
	UsingTongue
	Sitting
	Roaring
	Sniffing
	Emerging
	Digging
)

// Indices shared by every entity.
const (
	IndexFlags      byte = 0
	IndexAirTicks   byte = 1
	IndexCustomName byte = 2
	IndexSilent     byte = 4
	IndexNoGravity  byte = 5
	IndexPose       byte = 6
)
