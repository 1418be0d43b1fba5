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


// Command create-chunk writes a chunk with a bedrock floor to the region
// files of a level, and optionally to its chunk store.
package main

import (
	"bytes"
	"compress/gzip"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Tnze/go-mc/level/block"
	"github.com/Tnze/go-mc/nbt"
	"github.com/Tnze/go-mc/save/region"

	"FlowyLayer/world"
)

var (
	levelName = flag.String("level", "world", "Level directory")
	chunkX    = flag.Int("x", 0, "Chunk X")
	chunkZ    = flag.Int("z", 0, "Chunk Z")
	storeName = flag.String("store", "", "Chunk store inside the level directory, skipped when empty")
	minY      = flag.Int("min-y", -64, "Lowest block Y of the dimension")
	height    = flag.Int("height", 384, "Height of the dimension")
)

func main() {
	flag.Parse()
	if err := writeRegion(*levelName, *chunkX, *chunkZ); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *storeName != "" {
		if err := writeStore(filepath.Join(*levelName, *storeName), *chunkX, *chunkZ); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
}

func writeRegion(dir string, x, z int) (errRet error) {
	regionDir := filepath.Join(dir, "region")
	if err := os.MkdirAll(regionDir, 0o755); err != nil {
		return err
	}
	rx, rz := region.At(x, z)
	path := filepath.Join(regionDir, fmt.Sprintf("r.%d.%d.mca", rx, rz))

	var r *region.Region
	var err error
	if _, statErr := os.Stat(path); statErr == nil {
		r, err = region.Open(path)
	} else {
		r, err = region.Create(path)
	}
	if err != nil {
		return fmt.Errorf("open region fail: %w", err)
	}
	defer func(r *region.Region) {
		if err := r.Close(); errRet == nil {
			errRet = err
		}
	}(r)

	data, err := bedrockChunk(x, z)
	if err != nil {
		return err
	}
	ix, iz := region.In(x, z)
	return r.WriteSector(ix, iz, data)
}

// bedrockChunk encodes a chunk whose lowest section is bedrock in the
// vanilla save format.
func bedrockChunk(x, z int) ([]byte, error) {
	lowest := int8(*minY >> 4)
	chunk := map[string]any{
		"DataVersion": int32(3337),
		"xPos":        int32(x),
		"yPos":        int32(lowest),
		"zPos":        int32(z),
		"Status":      "full",
		"LastUpdate":  int64(0),
		"Heightmaps": map[string][]int64{
			"WORLD_SURFACE":             make([]int64, 37),
			"WORLD_SURFACE_WG":          make([]int64, 37),
			"OCEAN_FLOOR":               make([]int64, 37),
			"OCEAN_FLOOR_WG":            make([]int64, 37),
			"MOTION_BLOCKING":           make([]int64, 37),
			"MOTION_BLOCKING_NO_LEAVES": make([]int64, 37),
		},
		"sections": []map[string]any{
			{
				"Y": lowest,
				"block_states": map[string]any{
					"palette": []map[string]any{
						{"Name": "minecraft:bedrock"},
					},
					"data": []int64{0},
				},
				"biomes": map[string]any{
					"palette": []string{"minecraft:plains"},
					"data":    []int64{0},
				},
			},
		},
	}

	var buf bytes.Buffer
	buf.WriteByte(1) // gzip
	gw := gzip.NewWriter(&buf)
	if err := nbt.NewEncoder(gw).Encode(chunk, ""); err != nil {
		return nil, fmt.Errorf("encode chunk fail: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeStore(path string, x, z int) error {
	store, err := world.OpenChunkStore(path)
	if err != nil {
		return err
	}
	c := world.NewUnloadedChunkWithHeight(*height)
	c.FillBlockStateSection(0, block.ToStateID[block.Bedrock{}])
	if err := store.Put(world.ChunkPos{X: int32(x), Z: int32(z)}, c); err != nil {
		_ = store.Close()
		return err
	}
	return store.Close()
}
