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
	"math"
	"time"

	"github.com/Tnze/go-mc/chat"
	"go.uber.org/zap"
)

func (w *World) tickLoop() {
	ticker := time.NewTicker(time.Second / time.Duration(w.config.TickRate))
	defer ticker.Stop()
	var n uint
	for {
		select {
		case <-ticker.C:
			w.tick(n)
			n++
		case <-w.done:
			return
		}
	}
}

func (w *World) tick(n uint) {
	w.tickLock.Lock()
	defer w.tickLock.Unlock()

	if n%8 == 0 {
		w.subtickChunkLoad()
	}
	w.subtickUpdatePlayers()
	w.subtickUpdateEntities()
	w.subtickUpdateClients()
}

func (w *World) subtickChunkLoad() {
LoadChunk:
	for _, loader := range w.loaders {
		loader.calcLoadingQueue(func(pos ChunkPos) bool { return w.chunks.Chunk(pos) != nil })
		for _, pos := range loader.loadQueue {
			if !loader.limiter.Allow() {
				break
			}
			if !w.loadChunk(pos) {
				break LoadChunk
			}
		}
	}

	var unloadQueue []ChunkPos
	w.chunks.Chunks(func(pos ChunkPos, _ *LoadedChunk) bool {
		if !w.inView(pos) {
			unloadQueue = append(unloadQueue, pos)
		}
		return true
	})
	for _, pos := range unloadQueue {
		w.unloadChunk(pos)
	}
}

func (w *World) subtickUpdatePlayers() {
	for c, p := range w.players {
		if !p.Inputs.TryLock() {
			continue
		}
		inputs := &p.Inputs

		if d := int32(inputs.ViewDistance); d > 0 {
			p.ViewDistance = min(max(d, 2), w.config.ViewDistance)
		}

		if p.teleport != nil {
			if inputs.TeleportID == p.teleport.ID {
				p.Position = p.teleport.Position
				p.Rotation = p.teleport.Rotation
				p.teleport = nil
			}
		} else {
			delta := [3]float64{
				inputs.Position[0] - p.Position[0],
				inputs.Position[1] - p.Position[1],
				inputs.Position[2] - p.Position[2],
			}
			distance := math.Sqrt(delta[0]*delta[0] + delta[1]*delta[1] + delta[2]*delta[2])
			if distance > 100 {
				// Moved too far in one tick, pull the client back.
				teleportID := c.SendPlayerPosition(p.Position, p.Rotation)
				p.teleport = &TeleportRequest{
					ID:       teleportID,
					Position: p.Position,
					Rotation: p.Rotation,
				}
			} else if inputs.Position.IsValid() {
				p.Position = inputs.Position
				p.Rotation = inputs.Rotation
				p.HeadYaw = inputs.Rotation[0]
				p.OnGround = inputs.OnGround
			} else {
				w.log.Info("Player move invalid",
					zap.Float64("x", inputs.Position[0]),
					zap.Float64("y", inputs.Position[1]),
					zap.Float64("z", inputs.Position[2]),
				)
				c.SendDisconnect(chat.TranslateMsg("multiplayer.disconnect.invalid_player_movement"))
			}
		}
		p.animations |= inputs.Animations
		inputs.Animations = 0
		p.Inputs.Unlock()
		w.updatePlayerView(p)
	}
}

func (w *World) subtickUpdateEntities() {
	ChangeEntityPositions(w.entityLayers, w.entities)
	SendEntityUpdateMessages(w.entityLayers, w.entities)
}

func (w *World) subtickUpdateClients() {
	w.chunks.UpdatePreClient()
	for _, l := range w.entityLayers {
		l.UpdatePreClient()
	}

	for c, p := range w.players {
		w.updateClient(c, p)
	}
	for c, p := range w.leaving {
		w.releaseClient(p)
		w.playerViews.Delete(p.viewNode)
		delete(w.leaving, c)
	}

	w.chunks.UpdatePostClient()
	for id, l := range w.entityLayers {
		l.UpdatePostClient()
		if l.Despawned() {
			delete(w.entityLayers, id)
		}
	}
	w.entities.clearChanges()
}
