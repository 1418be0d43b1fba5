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

	"github.com/Tnze/go-mc/level/biome"
	"github.com/Tnze/go-mc/level/block"
	pk "github.com/Tnze/go-mc/net/packet"

	"FlowyLayer/world/internal/palette"
)

const (
	sectionBlockCount = 16 * 16 * 16
	sectionBiomeCount = 4 * 4 * 4
	// maxHeight is the tallest dimension the protocol can describe.
	maxHeight = 4096
)

// section is a 16x16x16 slice of a chunk column.
type section struct {
	states palette.Container[block.StateID]
	biomes palette.Container[biome.Type]
	// updates holds the block changes of this tick as packed
	// section_blocks_update entries. Only viewed chunks record them.
	updates []pk.VarLong
}

func newSection() section {
	return section{
		states: palette.New(sectionBlockCount, airState),
		biomes: palette.New(sectionBiomeCount, defaultBiome),
	}
}

func (s *section) clone() section {
	return section{states: s.states.Clone(), biomes: s.biomes.Clone()}
}

func (s *section) nonAirCount() int16 {
	return int16(s.states.Count(func(s block.StateID) bool { return !block.IsAir(s) }))
}

// encode writes the section in the layout of the chunk data packet.
func (s *section) encode(w io.Writer, info *ChunkLayerInfo) error {
	if _, err := pk.Short(s.nonAirCount()).WriteTo(w); err != nil {
		return err
	}
	if _, err := s.states.Encode(w, stateBits, 4, 8, block.BitsPerBlock); err != nil {
		return err
	}
	_, err := s.biomes.Encode(w, biomeBits, 0, 3, info.biomeBits())
	return err
}

func stateBits(s block.StateID) uint64 { return uint64(s) }
func biomeBits(b biome.Type) uint64    { return uint64(b) }

// sectionUpdate packs one entry of the section_blocks_update packet.
func sectionUpdate(x, y, z int, s block.StateID) pk.VarLong {
	return pk.VarLong(int64(s)<<12 | int64(x)<<8 | int64(z)<<4 | int64(y))
}

func unpackSectionUpdate(v pk.VarLong) (x, y, z int, s block.StateID) {
	return int(v >> 8 & 0xF), int(v & 0xF), int(v >> 4 & 0xF), block.StateID(v >> 12)
}

func blockIndex(x, y, z int) int { return x + z*16 + y%16*256 }
func biomeIndex(x, y, z int) int { return x + z*4 + y%4*16 }
