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
	"compress/gzip"
	"fmt"
	"math/bits"
	"os"
	"strings"
	"sync"

	"github.com/Tnze/go-mc/level/biome"
	"github.com/Tnze/go-mc/level/block"
	"github.com/Tnze/go-mc/nbt"
	"github.com/Tnze/go-mc/registry"
)

// NetworkCodec is sent to every client at login.
var NetworkCodec registry.NetworkCodec

// LoadNetworkCodec reads the registry codec from a gzipped NBT file.
func LoadNetworkCodec(path string) (errRet error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func(f *os.File) {
		if err := f.Close(); errRet == nil && err != nil {
			errRet = fmt.Errorf("close registry codec fail: %w", err)
		}
	}(f)

	r, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("open gzip reader fail: %w", err)
	}
	if _, err := nbt.NewDecoder(r).Decode(&NetworkCodec); err != nil {
		return fmt.Errorf("decode registry codec fail: %w", err)
	}
	return r.Close()
}

// ChunkLayerInfo describes the dimension stored by a chunk layer.
type ChunkLayerInfo struct {
	MinY       int32
	Height     uint32
	BiomeCount int
	// Threshold is the network compression threshold, negative to disable.
	Threshold int
}

// DefaultLayerInfo is the overworld of a vanilla server.
var DefaultLayerInfo = ChunkLayerInfo{
	MinY:       -64,
	Height:     384,
	BiomeCount: 64,
	Threshold:  256,
}

func (info ChunkLayerInfo) sectionCount() int { return int(info.Height / 16) }

func (info ChunkLayerInfo) biomeBits() int {
	return max(1, bits.Len(uint(info.BiomeCount-1)))
}

var (
	airState   = block.ToStateID[block.Air{}]
	stoneState = block.ToStateID[block.Stone{}]
)

// defaultBiome fills new sections. It is the first entry of the biome
// registry.
const defaultBiome biome.Type = 0

// blocksMotion reports whether the block counts for the MOTION_BLOCKING
// heightmap. Fluids count, so every non-air block does.
func blocksMotion(s block.StateID) bool { return !block.IsAir(s) }

var blockEntityKinds struct {
	once  sync.Once
	kinds []int32
}

// blockEntityKind returns the block entity type of the block a state
// belongs to, if that block has one.
func blockEntityKind(s block.StateID) (block.EntityType, bool) {
	blockEntityKinds.once.Do(func() {
		kinds := make([]int32, len(block.StateList))
		for i, b := range block.StateList {
			kinds[i] = -1
			if t, ok := block.EntityTypes["minecraft:"+blockEntityName(b.ID())]; ok {
				kinds[i] = int32(t)
			}
		}
		blockEntityKinds.kinds = kinds
	})
	if s < 0 || int(s) >= len(blockEntityKinds.kinds) {
		return 0, false
	}
	k := blockEntityKinds.kinds[s]
	return block.EntityType(k), k >= 0
}

// blockEntityName maps a block id to the id of its block entity type.
func blockEntityName(id string) string {
	name := strings.TrimPrefix(id, "minecraft:")
	switch {
	case strings.HasSuffix(name, "hanging_sign"):
		return "hanging_sign"
	case strings.HasSuffix(name, "_sign"):
		return "sign"
	case strings.HasSuffix(name, "_banner"):
		return "banner"
	case strings.HasSuffix(name, "_bed"):
		return "bed"
	case strings.HasSuffix(name, "shulker_box"):
		return "shulker_box"
	case strings.HasSuffix(name, "_head"), strings.HasSuffix(name, "_skull"):
		return "skull"
	case strings.HasSuffix(name, "command_block"):
		return "command_block"
	case strings.HasSuffix(name, "campfire"):
		return "campfire"
	case name == "bee_nest":
		return "beehive"
	case name == "moving_piston":
		return "piston"
	}
	return name
}
