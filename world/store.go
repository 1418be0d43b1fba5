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
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Tnze/go-mc/level/biome"
	"github.com/Tnze/go-mc/level/block"
	"github.com/Tnze/go-mc/nbt"
	"github.com/boltdb/bolt"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

var chunkBucket = []byte("chunks")

// ChunkStore keeps the chunks unloaded by the server in a bolt database.
// Each record is a msgpack document compressed with zstd.
type ChunkStore struct {
	db  *bolt.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// chunkRecord is the stored form of an UnloadedChunk. A uniform section
// stores a single state or biome.
type chunkRecord struct {
	Sections      []sectionRecord `msgpack:"sections"`
	BlockEntities map[int][]byte  `msgpack:"block_entities"`
}

type sectionRecord struct {
	States []int32  `msgpack:"states"`
	Biomes []uint16 `msgpack:"biomes"`
}

// OpenChunkStore opens or creates the database at path.
func OpenChunkStore(path string) (*ChunkStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open chunk store fail: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(chunkBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create chunk bucket fail: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &ChunkStore{db: db, enc: enc, dec: dec}, nil
}

func chunkKey(pos ChunkPos) []byte {
	key := binary.BigEndian.AppendUint32(nil, uint32(pos.X))
	return binary.BigEndian.AppendUint32(key, uint32(pos.Z))
}

// Get reads the chunk at pos. It returns errChunkNotExist if the chunk was
// never stored.
func (s *ChunkStore) Get(pos ChunkPos) (*UnloadedChunk, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(chunkBucket).Get(chunkKey(pos))
		if v == nil {
			return errChunkNotExist
		}
		// v is only valid inside the transaction.
		var err error
		data, err = s.dec.DecodeAll(v, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	var rec chunkRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode chunk %v fail: %w", pos, err)
	}
	return rec.chunk()
}

// Put writes the chunk at pos, replacing any stored one.
func (s *ChunkStore) Put(pos ChunkPos, c *UnloadedChunk) error {
	rec, err := newChunkRecord(c)
	if err != nil {
		return fmt.Errorf("encode chunk %v fail: %w", pos, err)
	}
	data, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("encode chunk %v fail: %w", pos, err)
	}
	data = s.enc.EncodeAll(data, nil)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(chunkBucket).Put(chunkKey(pos), data)
	})
}

// Delete removes the chunk at pos from the store.
func (s *ChunkStore) Delete(pos ChunkPos) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(chunkBucket).Delete(chunkKey(pos))
	})
}

func (s *ChunkStore) Close() error {
	s.dec.Close()
	if err := s.enc.Close(); err != nil {
		_ = s.db.Close()
		return err
	}
	return s.db.Close()
}

func newChunkRecord(c *UnloadedChunk) (chunkRecord, error) {
	rec := chunkRecord{
		Sections:      make([]sectionRecord, len(c.sections)),
		BlockEntities: make(map[int][]byte, len(c.blockEntities)),
	}
	for i := range c.sections {
		sect := &c.sections[i]
		if s, ok := sect.states.Single(); ok {
			rec.Sections[i].States = []int32{int32(s)}
		} else {
			states := make([]int32, sectionBlockCount)
			for j := range states {
				states[j] = int32(sect.states.Get(j))
			}
			rec.Sections[i].States = states
		}
		if b, ok := sect.biomes.Single(); ok {
			rec.Sections[i].Biomes = []uint16{uint16(b)}
		} else {
			biomes := make([]uint16, sectionBiomeCount)
			for j := range biomes {
				biomes[j] = uint16(sect.biomes.Get(j))
			}
			rec.Sections[i].Biomes = biomes
		}
	}
	// Block entities keep their NBT form so tag types survive the trip.
	for idx, be := range c.blockEntities {
		data, err := nbt.Marshal(be)
		if err != nil {
			return chunkRecord{}, err
		}
		rec.BlockEntities[idx] = data
	}
	return rec, nil
}

func (rec *chunkRecord) chunk() (*UnloadedChunk, error) {
	c := NewUnloadedChunkWithHeight(len(rec.Sections) * 16)
	for i, sr := range rec.Sections {
		sect := &c.sections[i]
		switch len(sr.States) {
		case 1:
			sect.states.Fill(block.StateID(sr.States[0]))
		case sectionBlockCount:
			for j, s := range sr.States {
				sect.states.Set(j, block.StateID(s))
			}
		default:
			return nil, fmt.Errorf("section %d: %d block states", i, len(sr.States))
		}
		switch len(sr.Biomes) {
		case 1:
			sect.biomes.Fill(biome.Type(sr.Biomes[0]))
		case sectionBiomeCount:
			for j, b := range sr.Biomes {
				sect.biomes.Set(j, biome.Type(b))
			}
		default:
			return nil, fmt.Errorf("section %d: %d biomes", i, len(sr.Biomes))
		}
	}
	for idx, data := range rec.BlockEntities {
		if idx < 0 || idx >= c.Height()*256 {
			return nil, fmt.Errorf("block entity index %d out of bounds", idx)
		}
		be := Compound{}
		if err := nbt.Unmarshal(data, &be); err != nil {
			return nil, fmt.Errorf("decode block entity fail: %w", err)
		}
		c.blockEntities[idx] = be
	}
	c.Optimize()
	return c, nil
}
