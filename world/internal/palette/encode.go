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

package palette

import (
	"io"
	"math/bits"

	pk "github.com/Tnze/go-mc/net/packet"
)

// Encode writes the container in the paletted container network format.
//
// toBits maps a value to its registry id. Indirect containers use
// max(minBits, bits needed for the palette) bits per entry and fall back to
// the direct format when that exceeds maxBits. Direct data uses directBits.
func (c *Container[T]) Encode(w io.Writer, toBits func(T) uint64, minBits, maxBits, directBits int) (n int64, err error) {
	switch c.form {
	case single:
		return pk.Tuple{
			pk.UnsignedByte(0),
			pk.VarInt(toBits(c.value)),
			pk.VarInt(0),
		}.WriteTo(w)
	case indirect:
		bitsPerEntry := max(minBits, bits.Len(uint(len(c.palette)-1)))
		if bitsPerEntry > maxBits {
			return c.encodeDirect(w, toBits, directBits)
		}
		palette := make([]pk.VarInt, len(c.palette))
		for i, v := range c.palette {
			palette[i] = pk.VarInt(toBits(v))
		}
		data := packLongs(c.n, bitsPerEntry, func(i int) uint64 { return uint64(c.index(i)) })
		return pk.Tuple{
			pk.UnsignedByte(bitsPerEntry),
			pk.Array(palette),
			pk.Array(data),
		}.WriteTo(w)
	default:
		return c.encodeDirect(w, toBits, directBits)
	}
}

func (c *Container[T]) encodeDirect(w io.Writer, toBits func(T) uint64, directBits int) (int64, error) {
	data := packLongs(c.n, directBits, func(i int) uint64 { return toBits(c.Get(i)) })
	return pk.Tuple{
		pk.UnsignedByte(directBits),
		pk.Array(data),
	}.WriteTo(w)
}

// PackedLen is the number of 64-bit words needed to hold n entries of
// bitsPerEntry bits without splitting an entry across words.
func PackedLen(n, bitsPerEntry int) int {
	perLong := 64 / bitsPerEntry
	return (n + perLong - 1) / perLong
}

// packLongs packs n values LSB first. No entry spans two words.
func packLongs(n, bitsPerEntry int, value func(i int) uint64) []pk.Long {
	perLong := 64 / bitsPerEntry
	data := make([]pk.Long, PackedLen(n, bitsPerEntry))
	for i := 0; i < n; i++ {
		shift := i % perLong * bitsPerEntry
		data[i/perLong] |= pk.Long(value(i) << shift)
	}
	return data
}

// Pack packs values into 64-bit words the same way Encode packs container
// data. It is used for heightmaps.
func Pack(values []uint64, bitsPerEntry int) []uint64 {
	longs := packLongs(len(values), bitsPerEntry, func(i int) uint64 { return values[i] })
	data := make([]uint64, len(longs))
	for i, v := range longs {
		data[i] = uint64(v)
	}
	return data
}

// Unpack is the inverse of Pack.
func Unpack(data []uint64, n, bitsPerEntry int) []uint64 {
	perLong := 64 / bitsPerEntry
	mask := uint64(1)<<bitsPerEntry - 1
	values := make([]uint64, n)
	for i := range values {
		values[i] = data[i/perLong] >> (i % perLong * bitsPerEntry) & mask
	}
	return values
}
