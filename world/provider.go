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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Tnze/go-mc/level"
	"github.com/Tnze/go-mc/save"
	"github.com/Tnze/go-mc/save/region"
	"github.com/Tnze/go-mc/yggdrasil/user"
)

// ChunkProvider reads chunks from the chunk store, falling back to the
// region files of a vanilla world, and writes them back to the store.
type ChunkProvider struct {
	dir     string
	minY    int
	store   *ChunkStore
	limiter *rate.Limiter
}

// NewProvider returns a provider reading region files from dir. store may
// be nil, in which case unloaded chunks are discarded.
func NewProvider(dir string, minY int32, store *ChunkStore, limiter *rate.Limiter) *ChunkProvider {
	return &ChunkProvider{dir: dir, minY: int(minY), store: store, limiter: limiter}
}

var ErrReachRateLimit = errors.New("reach rate limit")

var errChunkNotExist = errors.New("chunk not exist")

func (p *ChunkProvider) GetChunk(pos ChunkPos) (*UnloadedChunk, error) {
	if !p.limiter.Allow() {
		return nil, ErrReachRateLimit
	}
	if p.store != nil {
		c, err := p.store.Get(pos)
		if !errors.Is(err, errChunkNotExist) {
			return c, err
		}
	}
	return p.getRegionChunk(pos)
}

func (p *ChunkProvider) getRegionChunk(pos ChunkPos) (c *UnloadedChunk, errRet error) {
	r, err := p.getRegion(region.At(int(pos.X), int(pos.Z)))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errChunkNotExist
	} else if err != nil {
		return nil, fmt.Errorf("open region fail: %w", err)
	}
	defer func(r *region.Region) {
		err2 := r.Close()
		if errRet == nil && err2 != nil {
			errRet = fmt.Errorf("close region fail: %w", err2)
		}
	}(r)

	x, z := region.In(int(pos.X), int(pos.Z))
	if !r.ExistSector(x, z) {
		return nil, errChunkNotExist
	}

	data, err := r.ReadSector(x, z)
	if err != nil {
		return nil, fmt.Errorf("read sector fail: %w", err)
	}

	var chunk save.Chunk
	if err := chunk.Load(data); err != nil {
		return nil, fmt.Errorf("parse chunk data fail: %w", err)
	}

	lc, err := level.ChunkFromSave(&chunk)
	if err != nil {
		return nil, fmt.Errorf("load chunk data fail: %w", err)
	}
	return UnloadedChunkFromLevel(lc, p.minY)
}

func (p *ChunkProvider) getRegion(rx, rz int) (*region.Region, error) {
	filename := fmt.Sprintf("r.%d.%d.mca", rx, rz)
	return region.Open(filepath.Join(p.dir, filename))
}

// PutChunk saves a chunk unloaded by the world.
func (p *ChunkProvider) PutChunk(pos ChunkPos, c *UnloadedChunk) error {
	if p.store == nil {
		return nil
	}
	return p.store.Put(pos, c)
}

func (p *ChunkProvider) Close() error {
	if p.store == nil {
		return nil
	}
	return p.store.Close()
}

type PlayerProvider struct {
	dir string
}

func NewPlayerProvider(dir string) PlayerProvider {
	return PlayerProvider{dir: dir}
}

func (p *PlayerProvider) GetPlayer(name string, id uuid.UUID, pubKey *user.PublicKey, properties []user.Property) (player *Player, errRet error) {
	f, err := os.Open(filepath.Join(p.dir, id.String()+".dat"))
	if err != nil {
		return nil, err
	}
	defer func(f *os.File) {
		err2 := f.Close()
		if errRet == nil && err2 != nil {
			errRet = fmt.Errorf("close player data fail: %w", err2)
		}
	}(f)

	r, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip reader fail: %w", err)
	}

	data, err := save.ReadPlayerData(r)
	if err != nil {
		return nil, fmt.Errorf("read player data fail: %w", err)
	}
	if err := r.Close(); err != nil {
		return nil, fmt.Errorf("close gzip reader fail: %w", err)
	}

	player = NewPlayer(name, data.Pos, data.Rotation)
	player.UUID = id
	player.PubKey = pubKey
	player.Properties = properties
	player.Gamemode = data.PlayerGameType
	return
}
