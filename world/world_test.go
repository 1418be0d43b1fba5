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
	"testing"

	"github.com/Tnze/go-mc/chat"
	"github.com/Tnze/go-mc/data/packetid"
	pk "github.com/Tnze/go-mc/net/packet"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type fakeClient struct {
	out          []byte
	teleports    int32
	disconnected bool
}

func (c *fakeClient) WritePacketBytes(b []byte) { c.out = append(c.out, b...) }

func (c *fakeClient) SendDisconnect(chat.Message) { c.disconnected = true }

func (c *fakeClient) SendPlayerPosition([3]float64, [2]float32) int32 {
	c.teleports++
	return c.teleports
}

// take returns the packets written since the last call.
func (c *fakeClient) take(t *testing.T) []pk.Packet {
	t.Helper()
	list := readPackets(t, c.out)
	c.out = c.out[:0]
	return list
}

func count(list []pk.Packet, id packetid.ClientboundPacketID) (n int) {
	for _, p := range list {
		if packetid.ClientboundPacketID(p.ID) == id {
			n++
		}
	}
	return
}

func newTestWorld(t *testing.T, provider *ChunkProvider) *World {
	t.Helper()
	return newWorld(zap.NewNop(), provider, Config{ViewDistance: 2, Layer: testLayerInfo})
}

// fillChunks loads every chunk in [lo, hi] on both axes.
func fillChunks(w *World, lo, hi int32) {
	for x := lo; x <= hi; x++ {
		for z := lo; z <= hi; z++ {
			w.chunks.InsertChunk(ChunkPos{x, z}, NewUnloadedChunk())
		}
	}
}

func addTestPlayer(w *World, pos Position) (*fakeClient, *Player) {
	c := &fakeClient{}
	p := NewPlayer("test", pos, Rotation{})
	p.ViewDistance = 2
	w.AddPlayer(c, p, rate.NewLimiter(rate.Inf, 0))
	return c, p
}

func tickClients(w *World) {
	w.subtickUpdateEntities()
	w.subtickUpdateClients()
}

func viewSize(v ChunkView) (n int) {
	v.ForEach(func(ChunkPos) bool { n++; return true })
	return
}

func TestWorld_JoinSendsView(t *testing.T) {
	w := newTestWorld(t, nil)
	fillChunks(w, -8, 8)
	c, p := addTestPlayer(w, Position{8, 64, 8})
	tickClients(w)

	list := c.take(t)
	if packetid.ClientboundPacketID(list[0].ID) != packetid.ClientboundSetChunkCacheCenter {
		t.Errorf("first packet: got 0x%02X", list[0].ID)
	}
	want := viewSize(p.currentView())
	if n := count(list, packetid.ClientboundLevelChunkWithLight); n != want {
		t.Errorf("want %d chunks, got %d", want, n)
	}
	if n := count(list, packetid.ClientboundAddPlayer); n != 0 {
		t.Error("player was spawned for itself")
	}
	if v := w.chunks.Chunk(ChunkPos{}).Viewers(); v != 1 {
		t.Errorf("viewers: got %d", v)
	}

	tickClients(w)
	if list := c.take(t); len(list) != 0 {
		t.Errorf("idle tick sent %v", packetIDs(list))
	}
}

func TestWorld_PlayersSeeEachOther(t *testing.T) {
	w := newTestWorld(t, nil)
	fillChunks(w, -8, 8)
	c1, _ := addTestPlayer(w, Position{8, 64, 8})
	tickClients(w)
	c1.take(t)

	c2, p2 := addTestPlayer(w, Position{24, 64, 8})
	tickClients(w)
	if n := count(c1.take(t), packetid.ClientboundAddPlayer); n != 1 {
		t.Errorf("first player: want 1 spawn, got %d", n)
	}
	if n := count(c2.take(t), packetid.ClientboundAddPlayer); n != 1 {
		t.Errorf("second player: want 1 spawn, got %d", n)
	}

	p2.Position[0] = 25
	p2.Rotation[0] = 45
	tickClients(w)
	l1 := c1.take(t)
	if n := count(l1, packetid.ClientboundMoveEntityPosRot); n != 1 {
		t.Errorf("first player: want a move, got %v", packetIDs(l1))
	}
	if l2 := c2.take(t); len(l2) != 0 {
		t.Errorf("mover got its own update: %v", packetIDs(l2))
	}

	w.RemovePlayer(c2, p2)
	tickClients(w)
	if n := count(c1.take(t), packetid.ClientboundRemoveEntities); n != 1 {
		t.Error("leaving player was not removed")
	}
	if v := w.chunks.Chunk(ChunkPos{1, 0}).Viewers(); v != 1 {
		t.Errorf("viewers after leave: got %d", v)
	}
}

func TestWorld_EntityCrossesChunks(t *testing.T) {
	w := newTestWorld(t, nil)
	fillChunks(w, -8, 8)
	c, _ := addTestPlayer(w, Position{8, 64, 8})
	h := w.entities.Spawn(&Entity{Layer: MainLayer, Position: Position{15, 64, 8}})
	tickClients(w)
	if n := count(c.take(t), packetid.ClientboundAddEntity); n != 1 {
		t.Fatalf("want the entity spawned, got %d", n)
	}

	// Both chunks are in view, the client only sees it move.
	w.entities.Get(h).Position[0] = 17
	tickClients(w)
	list := c.take(t)
	if count(list, packetid.ClientboundRemoveEntities) != 0 || count(list, packetid.ClientboundAddEntity) != 0 {
		t.Errorf("transition in view respawned: %v", packetIDs(list))
	}
	if count(list, packetid.ClientboundMoveEntityPos) != 1 {
		t.Errorf("want a move, got %v", packetIDs(list))
	}

	w.entities.Get(h).Position[0] = 16 * 20
	tickClients(w)
	if n := count(c.take(t), packetid.ClientboundRemoveEntities); n != 1 {
		t.Error("entity leaving view was not removed")
	}

	w.entities.Get(h).Position[0] = 40
	tickClients(w)
	if n := count(c.take(t), packetid.ClientboundAddEntity); n != 1 {
		t.Error("entity entering view was not spawned")
	}
}

func TestWorld_EntityChangesLayer(t *testing.T) {
	w := newTestWorld(t, nil)
	fillChunks(w, -8, 8)
	w.entityLayers[2] = NewEntityLayer(2, -1)
	c, p := addTestPlayer(w, Position{8, 64, 8})
	p.Layers[2] = struct{}{}
	h := w.entities.Spawn(&Entity{Layer: MainLayer, Position: Position{8, 64, 8}})
	tickClients(w)
	c.take(t)

	// The client sees both layers and both chunks.
	e := w.entities.Get(h)
	e.Layer = 2
	e.Position[0] = 24
	tickClients(w)
	list := c.take(t)
	if count(list, packetid.ClientboundRemoveEntities) != 0 || count(list, packetid.ClientboundAddEntity) != 0 {
		t.Errorf("layer change in view respawned: %v", packetIDs(list))
	}

	// The destination chunk is out of view.
	e.Layer = MainLayer
	e.Position[0] = 16 * 20
	tickClients(w)
	if n := count(c.take(t), packetid.ClientboundRemoveEntities); n != 1 {
		t.Error("entity was not removed")
	}

	// A layer the client stops seeing takes its entities with it.
	w.entities.Spawn(&Entity{Layer: 2, Position: Position{8, 64, 8}})
	tickClients(w)
	c.take(t)
	delete(p.Layers, 2)
	tickClients(w)
	if n := count(c.take(t), packetid.ClientboundRemoveEntities); n != 1 {
		t.Error("entities of a hidden layer were not removed")
	}
}

func TestWorld_DespawnLayer(t *testing.T) {
	w := newTestWorld(t, nil)
	fillChunks(w, -4, 4)
	l := NewEntityLayer(5, -1)
	w.entityLayers[5] = l
	c, p := addTestPlayer(w, Position{8, 64, 8})
	p.Layers[5] = struct{}{}
	w.entities.Spawn(&Entity{Layer: 5, Position: Position{8, 64, 8}})
	tickClients(w)
	c.take(t)

	l.Despawn()
	tickClients(w)
	if n := count(c.take(t), packetid.ClientboundRemoveEntities); n != 1 {
		t.Error("entities of a despawned layer were not removed")
	}
	if _, ok := p.Layers[5]; ok {
		t.Error("despawned layer still listed by the player")
	}
	if w.entityLayers[5] != nil {
		t.Error("despawned layer kept by the world")
	}
}

func TestWorld_ChunkChangesInView(t *testing.T) {
	w := newTestWorld(t, nil)
	fillChunks(w, -8, 8)
	w.chunks.RemoveChunk(ChunkPos{2, 1})
	c, _ := addTestPlayer(w, Position{8, 64, 8})
	tickClients(w)
	c.take(t)

	w.chunks.SetBlock(BlockPos{X: 1, Y: 0, Z: 1}, Block{State: stoneState})
	w.chunks.InsertChunk(ChunkPos{2, 1}, NewUnloadedChunk())
	tickClients(w)
	list := c.take(t)
	if count(list, packetid.ClientboundBlockUpdate) != 1 {
		t.Errorf("want a block update, got %v", packetIDs(list))
	}
	if count(list, packetid.ClientboundLevelChunkWithLight) != 1 {
		t.Errorf("loaded chunk not sent: %v", packetIDs(list))
	}
	if v := w.chunks.Chunk(ChunkPos{2, 1}).Viewers(); v != 1 {
		t.Errorf("viewers of the loaded chunk: got %d", v)
	}

	// Removed and reinserted in one tick: the client gets the new content
	// and the count is kept.
	w.chunks.RemoveChunk(ChunkPos{0, 0})
	w.chunks.InsertChunk(ChunkPos{0, 0}, NewUnloadedChunk())
	w.chunks.RemoveChunk(ChunkPos{1, 1})
	tickClients(w)
	list = c.take(t)
	if count(list, packetid.ClientboundForgetLevelChunk) != 1 || count(list, packetid.ClientboundLevelChunkWithLight) != 1 {
		t.Errorf("got %v", packetIDs(list))
	}
	if v := w.chunks.Chunk(ChunkPos{0, 0}).Viewers(); v != 1 {
		t.Errorf("viewers of the overwritten chunk: got %d", v)
	}

	// Loaded and unloaded in one tick: the client never hears of it.
	w.chunks.RemoveChunk(ChunkPos{2, 1})
	tickClients(w)
	c.take(t)
	w.chunks.InsertChunk(ChunkPos{2, 1}, NewUnloadedChunk())
	w.chunks.RemoveChunk(ChunkPos{2, 1})
	tickClients(w)
	if list := c.take(t); len(list) != 0 {
		t.Errorf("got %v", packetIDs(list))
	}
}

func TestWorld_LeaveAfterBlockChange(t *testing.T) {
	w := newTestWorld(t, nil)
	fillChunks(w, -8, 8)
	c, p := addTestPlayer(w, Position{8, 64, 8})
	tickClients(w)
	c.take(t)

	w.Update(func(chunks *ChunkLayer, _ *Entities, _ map[LayerID]*EntityLayer) {
		chunks.Chunk(ChunkPos{}).SetBlockState(1, 20, 1, stoneState)
	})
	w.RemovePlayer(c, p)
	if v := w.chunks.Chunk(ChunkPos{}).Viewers(); v != 1 {
		t.Fatalf("viewers released before the flush: got %d", v)
	}
	tickClients(w)
	if v := w.chunks.Chunk(ChunkPos{}).Viewers(); v != 0 {
		t.Errorf("viewers after leave: got %d", v)
	}
	if list := c.take(t); len(list) != 0 {
		t.Errorf("removed player was sent %v", packetIDs(list))
	}

	tickClients(w)
	if w.playerViews.Len() != 0 {
		t.Error("view of the removed player is still indexed")
	}
}

func TestWorld_LeaveAfterChunkInsert(t *testing.T) {
	w := newTestWorld(t, nil)
	fillChunks(w, -1, 1)
	c1, p1 := addTestPlayer(w, Position{8, 64, 8})
	c2, _ := addTestPlayer(w, Position{8, 64, 8})
	tickClients(w)
	c1.take(t)
	c2.take(t)

	pos := ChunkPos{2, 0}
	if !p1.sent.chunks.Contains(pos) {
		t.Fatalf("%v is not in view", pos)
	}
	w.Update(func(chunks *ChunkLayer, _ *Entities, _ map[LayerID]*EntityLayer) {
		chunks.InsertChunk(pos, NewUnloadedChunk())
	})
	w.RemovePlayer(c1, p1)
	tickClients(w)

	if v := w.chunks.Chunk(pos).Viewers(); v != 1 {
		t.Errorf("inserted chunk: want 1 viewer, got %d", v)
	}
	if v := w.chunks.Chunk(ChunkPos{}).Viewers(); v != 1 {
		t.Errorf("old chunk: want 1 viewer, got %d", v)
	}
	if n := count(c2.take(t), packetid.ClientboundLevelChunkWithLight); n != 1 {
		t.Errorf("remaining player: want 1 chunk, got %d", n)
	}
}

func TestWorld_MoveView(t *testing.T) {
	w := newTestWorld(t, nil)
	fillChunks(w, -8, 16)
	c, p := addTestPlayer(w, Position{8, 64, 8})
	tickClients(w)
	c.take(t)

	old := p.currentView()
	p.Position[0] += 16 * 3
	w.updatePlayerView(p)
	tickClients(w)
	list := c.take(t)

	var leaving, entering int
	old.Diff(p.currentView(), func(ChunkPos) { leaving++ })
	p.currentView().Diff(old, func(ChunkPos) { entering++ })
	if n := count(list, packetid.ClientboundForgetLevelChunk); n != leaving {
		t.Errorf("want %d forgotten, got %d", leaving, n)
	}
	if n := count(list, packetid.ClientboundLevelChunkWithLight); n != entering {
		t.Errorf("want %d sent, got %d", entering, n)
	}
	if n := count(list, packetid.ClientboundSetChunkCacheCenter); n != 1 {
		t.Error("center not moved")
	}
	if v := w.chunks.Chunk(ChunkPos{-4, 0}).Viewers(); v != 0 {
		t.Errorf("left chunk still viewed by %d", v)
	}
	if !w.inView(ChunkPos{7, 0}) || w.inView(ChunkPos{-4, 0}) {
		t.Error("view index not updated")
	}
}

func TestWorld_UpdatePlayers(t *testing.T) {
	w := newTestWorld(t, nil)
	c, p := addTestPlayer(w, Position{8, 64, 8})

	p.Inputs.ViewDistance = 32
	p.Inputs.Position = Position{9, 64, 8}
	w.subtickUpdatePlayers()
	if p.ViewDistance != w.config.ViewDistance || p.Position[0] != 9 {
		t.Errorf("view distance %d, position %v", p.ViewDistance, p.Position)
	}

	p.Inputs.Position = Position{500, 64, 8}
	w.subtickUpdatePlayers()
	if p.teleport == nil || c.teleports != 1 || p.Position[0] != 9 {
		t.Fatal("long move was not pulled back")
	}
	p.Inputs.TeleportID = p.teleport.ID
	w.subtickUpdatePlayers()
	if p.teleport != nil {
		t.Error("teleport was not confirmed")
	}

	p.Inputs.Position = Position{math.NaN(), 64, 8}
	w.subtickUpdatePlayers()
	if !c.disconnected {
		t.Error("invalid move did not disconnect")
	}
}

func TestWorld_SwingArm(t *testing.T) {
	w := newTestWorld(t, nil)
	fillChunks(w, -8, 8)
	c1, p1 := addTestPlayer(w, Position{8, 64, 8})
	c2, p2 := addTestPlayer(w, Position{24, 64, 8})
	tickClients(w)
	c1.take(t)
	c2.take(t)

	p1.Inputs.Position = p1.Position
	p2.Inputs.Position = p2.Position
	p2.Inputs.Animations = 1 << AnimationSwingMainArm
	w.subtickUpdatePlayers()
	if p2.Inputs.Animations != 0 {
		t.Error("animation input was not consumed")
	}
	tickClients(w)
	if n := count(c1.take(t), packetid.ClientboundAnimate); n != 1 {
		t.Errorf("want 1 animation, got %d", n)
	}
	if n := count(c2.take(t), packetid.ClientboundAnimate); n != 0 {
		t.Error("swinging player saw its own animation")
	}

	tickClients(w)
	if n := count(c1.take(t), packetid.ClientboundAnimate); n != 0 {
		t.Error("animation was sent twice")
	}
}

func TestWorld_LoadAndUnload(t *testing.T) {
	store := openTestStore(t)
	provider := NewProvider(t.TempDir(), testLayerInfo.MinY, store, rate.NewLimiter(rate.Inf, 0))
	w := newTestWorld(t, provider)
	_, p := addTestPlayer(w, Position{8, 64, 8})

	w.subtickChunkLoad()
	if n := w.chunks.Len(); n != radiusIdx[p.ViewDistance] {
		t.Fatalf("want %d chunks, got %d", radiusIdx[p.ViewDistance], n)
	}
	if s := w.chunks.Chunk(ChunkPos{}).BlockState(0, 0, 0); s != stoneState {
		t.Errorf("generated chunk: got %d", s)
	}
	w.chunks.SetBlock(BlockPos{X: 0, Y: -16, Z: 0}, Block{State: airState})
	tickClients(w)

	p.Position[0] = 16 * 100
	w.updatePlayerView(p)
	w.subtickChunkLoad()
	if w.chunks.Chunk(ChunkPos{}) != nil {
		t.Fatal("chunk out of view was not unloaded")
	}
	if _, err := store.Get(ChunkPos{}); err != nil {
		t.Fatalf("unloaded chunk not stored: %v", err)
	}
	tickClients(w)

	p.Position[0] = 8
	w.updatePlayerView(p)
	w.subtickChunkLoad()
	c := w.chunks.Chunk(ChunkPos{})
	if c == nil {
		t.Fatal("chunk not loaded again")
	}
	if s := c.BlockState(0, 0, 0); s != airState {
		t.Errorf("stored change lost: got %d", s)
	}
}
