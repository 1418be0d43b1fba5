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
	"errors"

	"github.com/sasha-s/go-deadlock"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"FlowyLayer/world/internal/bvh"
)

// MainLayer is the entity layer every player starts in.
const MainLayer LayerID = 1

// groundLevel is the top of the stone generated for missing chunks.
const groundLevel = 64

type World struct {
	log           *zap.Logger
	config        Config
	chunkProvider *ChunkProvider

	chunks       *ChunkLayer
	entityLayers map[LayerID]*EntityLayer
	entities     *Entities

	loaders  map[Client]*loader
	tickLock deadlock.Mutex
	done     chan struct{}

	playerViews playerViewTree
	players     map[Client]*Player
	// leaving holds removed players whose chunk views are released at the
	// next client flush.
	leaving map[Client]*Player
}

type Config struct {
	ViewDistance  int32
	SpawnAngle    float32
	SpawnPosition [3]int32
	Layer         ChunkLayerInfo
	// TickRate is the number of ticks per second, 20 when zero.
	TickRate int
}

type (
	playerViewNode = bvh.Node[float64, aabb2d, *Player]
	playerViewTree = bvh.Tree[float64, aabb2d, *Player]
)

// New creates a world and starts its tick loop.
func New(logger *zap.Logger, provider *ChunkProvider, config Config) *World {
	w := newWorld(logger, provider, config)
	go w.tickLoop()
	return w
}

func newWorld(logger *zap.Logger, provider *ChunkProvider, config Config) *World {
	if config.TickRate <= 0 {
		config.TickRate = 20
	}
	if config.ViewDistance <= 0 {
		config.ViewDistance = 10
	}
	return &World{
		log:           logger,
		config:        config,
		chunkProvider: provider,
		chunks:        NewChunkLayer(logger.Named("chunk-layer"), config.Layer),
		entityLayers: map[LayerID]*EntityLayer{
			MainLayer: NewEntityLayer(MainLayer, config.Layer.Threshold),
		},
		entities: NewEntities(),
		loaders:  make(map[Client]*loader),
		players:  make(map[Client]*Player),
		leaving:  make(map[Client]*Player),
		done:     make(chan struct{}),
	}
}

func (w *World) Name() string {
	return "minecraft:overworld"
}

func (w *World) SpawnPositionAndAngle() ([3]int32, float32) {
	return w.config.SpawnPosition, w.config.SpawnAngle
}

func (w *World) HashedSeed() [8]byte {
	return [8]byte{}
}

// ChunkLayer returns the blocks of the world. It may only be used from
// Update callbacks.
func (w *World) ChunkLayer() *ChunkLayer { return w.chunks }

// Update runs f between two ticks with exclusive access to the world.
func (w *World) Update(f func(chunks *ChunkLayer, entities *Entities, layers map[LayerID]*EntityLayer)) {
	w.tickLock.Lock()
	defer w.tickLock.Unlock()
	f(w.chunks, w.entities, w.entityLayers)
}

// AddPlayer spawns the entity of p and starts sending the world to c.
func (w *World) AddPlayer(c Client, p *Player, limiter *rate.Limiter) {
	w.tickLock.Lock()
	defer w.tickLock.Unlock()
	if p.Layer == 0 {
		p.Layer = MainLayer
	}
	p.Player, p.Client = true, true
	w.entities.Spawn(p.Entity)
	w.loaders[c] = newLoader(p, limiter)
	w.players[c] = p
	p.chunkView = p.currentView()
	p.viewNode = w.playerViews.Insert(viewBox(p.chunkView), p)
}

// RemovePlayer stops sending the world to c and despawns its entity at
// the next tick. The chunks it was sent stay counted as viewed until the
// next client flush.
func (w *World) RemovePlayer(c Client, p *Player) {
	w.tickLock.Lock()
	defer w.tickLock.Unlock()
	w.log.Debug("Remove Player",
		zap.String("name", p.Name),
		zap.Int("world count", w.chunks.Len()),
	)
	w.entities.Despawn(p.Handle())
	delete(w.loaders, c)
	delete(w.players, c)
	w.leaving[c] = p
}

// updatePlayerView moves the node of p in the view index when its view
// changed.
func (w *World) updatePlayerView(p *Player) {
	if v := p.currentView(); v != p.chunkView {
		p.chunkView = v
		w.playerViews.Delete(p.viewNode)
		p.viewNode = w.playerViews.Insert(viewBox(v), p)
	}
}

// inView reports whether any player sees the chunk at pos.
func (w *World) inView(pos ChunkPos) (found bool) {
	w.playerViews.Find(
		bvh.TouchPoint[vec2d, aabb2d](vec2d{float64(pos.X), float64(pos.Z)}),
		func(n *playerViewNode) bool {
			found = n.Value.chunkView.Contains(pos)
			return !found
		},
	)
	return
}

func (w *World) loadChunk(pos ChunkPos) bool {
	logger := w.log.With(zap.Int32("x", pos.X), zap.Int32("z", pos.Z))
	logger.Debug("Loading chunk")

	c, err := w.chunkProvider.GetChunk(pos)
	switch {
	case errors.Is(err, errChunkNotExist):
		logger.Debug("Generate chunk")
		c = w.generateChunk()
	case errors.Is(err, ErrReachRateLimit):
		return false
	case err != nil:
		logger.Error("GetChunk error", zap.Error(err))
		return false
	}

	w.chunks.InsertChunk(pos, c)
	logger.Debug("Loaded chunk", zap.Int("height", c.Height()))
	return true
}

// generateChunk returns a flat chunk of stone up to the ground level.
func (w *World) generateChunk() *UnloadedChunk {
	c := NewUnloadedChunkWithHeight(w.chunks.Height())
	top := min(max(int(groundLevel-w.chunks.MinY()), 0), c.Height())
	for sectY := 0; sectY < top/16; sectY++ {
		c.FillBlockStateSection(sectY, stoneState)
	}
	return c
}

func (w *World) unloadChunk(pos ChunkPos) {
	logger := w.log.With(zap.Int32("x", pos.X), zap.Int32("z", pos.Z))
	logger.Debug("Unloading chunk")
	c := w.chunks.RemoveChunk(pos)
	if c == nil {
		logger.Panic("Unloading an non-exist chunk")
	}
	if err := w.chunkProvider.PutChunk(pos, c); err != nil {
		logger.Error("Store chunk data error", zap.Error(err))
	}
}

// Close stops the tick loop, saves every loaded chunk and closes the
// chunk provider.
func (w *World) Close() error {
	close(w.done)
	w.tickLock.Lock()
	defer w.tickLock.Unlock()

	var errs []error
	w.chunks.Chunks(func(pos ChunkPos, c *LoadedChunk) bool {
		if err := w.chunkProvider.PutChunk(pos, c.snapshot()); err != nil {
			errs = append(errs, err)
		}
		return true
	})
	errs = append(errs, w.chunkProvider.Close())
	return errors.Join(errs...)
}
