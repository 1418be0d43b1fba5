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
	"math/rand"
	"slices"
	"testing"

	"github.com/Tnze/go-mc/data/packetid"
)

type queriedEntityLocal struct {
	tag entityLocal
	b   []byte
}

func queryEntityLayer(l *EntityLayer, view ChunkView) []queriedEntityLocal {
	var got []queriedEntityLocal
	l.messages.QueryLocal(view, func(tag entityLocal, b []byte) {
		got = append(got, queriedEntityLocal{tag, slices.Clone(b)})
	})
	return got
}

func newTestEntityLayers(ids ...LayerID) map[LayerID]*EntityLayer {
	layers := make(map[LayerID]*EntityLayer)
	for _, id := range ids {
		layers[id] = NewEntityLayer(id, -1)
	}
	return layers
}

// step runs the entity part of one tick and returns after the messages
// are ready.
func step(layers map[LayerID]*EntityLayer, entities *Entities) {
	ChangeEntityPositions(layers, entities)
	SendEntityUpdateMessages(layers, entities)
	for _, l := range layers {
		l.UpdatePreClient()
	}
}

func finish(layers map[LayerID]*EntityLayer, entities *Entities) {
	for _, l := range layers {
		l.UpdatePostClient()
	}
	entities.clearChanges()
}

func TestEntityLayer_Spawn(t *testing.T) {
	layers := newTestEntityLayers(1)
	entities := NewEntities()
	h := entities.Spawn(&Entity{Layer: 1, Position: Position{8, 0, 8}})

	step(layers, entities)
	if got := layers[1].EntitiesAt(ChunkPos{}); !slices.Equal(got, []EntityHandle{h}) {
		t.Fatalf("cell: got %v", got)
	}
	got := queryEntityLayer(layers[1], ChunkView{})
	if len(got) != 1 || got[0].tag.kind != entitySpawn || got[0].tag.layer != 0 {
		t.Fatalf("want one spawn from no layer, got %v", got)
	}
	if EntityHandle(binary.LittleEndian.Uint64(got[0].b)) != h {
		t.Errorf("spawn payload: got %v", got[0].b)
	}
	finish(layers, entities)

	if e := entities.Get(h); e.OldLayer != 1 || e.OldPosition != e.Position {
		t.Errorf("changes not cleared: %+v", e)
	}
}

func TestEntityLayer_Transition(t *testing.T) {
	layers := newTestEntityLayers(1)
	entities := NewEntities()
	h := entities.Spawn(&Entity{Layer: 1, Position: Position{15, 0, 8}})
	step(layers, entities)
	finish(layers, entities)

	e := entities.Get(h)
	e.Position[0] = 17
	step(layers, entities)

	if len(layers[1].EntitiesAt(ChunkPos{})) != 0 || len(layers[1].EntitiesAt(ChunkPos{1, 0})) != 1 {
		t.Fatal("entity did not change cells")
	}
	var kinds []entityLocalKind
	for _, m := range queryEntityLayer(layers[1], ChunkView{Dist: 8}) {
		kinds = append(kinds, m.tag.kind)
		switch m.tag.kind {
		case entityDespawnTransition:
			if m.tag.pos != (ChunkPos{}) || m.tag.other != (ChunkPos{1, 0}) {
				t.Errorf("despawn tag: %+v", m.tag)
			}
			if int32(binary.LittleEndian.Uint32(m.b)) != e.EntityID {
				t.Errorf("despawn payload: %v", m.b)
			}
		case entitySpawnTransition:
			if m.tag.pos != (ChunkPos{1, 0}) || m.tag.other != (ChunkPos{}) {
				t.Errorf("spawn tag: %+v", m.tag)
			}
		case entityPacketAt:
			if m.tag.pos != (ChunkPos{}) {
				t.Errorf("update sent at %v, want the old chunk", m.tag.pos)
			}
			list := readPackets(t, m.b)
			if len(list) != 1 || packetid.ClientboundPacketID(list[0].ID) != packetid.ClientboundMoveEntityPos {
				t.Errorf("update: got %v", packetIDs(list))
			}
		}
	}
	want := []entityLocalKind{entityDespawnTransition, entitySpawnTransition, entityPacketAt}
	if !slices.Equal(kinds, want) {
		t.Errorf("want %v, got %v", want, kinds)
	}
	finish(layers, entities)
}

func TestEntityLayer_ChangeLayer(t *testing.T) {
	layers := newTestEntityLayers(1, 2)
	entities := NewEntities()
	h := entities.Spawn(&Entity{Layer: 1})
	step(layers, entities)
	finish(layers, entities)

	e := entities.Get(h)
	e.Layer = 2
	e.Position = Position{40, 0, 0}
	step(layers, entities)

	// Viewers of both layers keep the entity, so the old layer also gets
	// its update.
	var kinds []entityLocalKind
	for _, m := range queryEntityLayer(layers[1], ChunkView{Dist: 8}) {
		kinds = append(kinds, m.tag.kind)
		if m.tag.kind == entityDespawn && m.tag != (entityLocal{kind: entityDespawn, layer: 2, other: ChunkPos{2, 0}}) {
			t.Errorf("despawn tag: %+v", m.tag)
		}
	}
	if !slices.Equal(kinds, []entityLocalKind{entityDespawn, entityPacketAt}) {
		t.Errorf("old layer: got %v", kinds)
	}
	var spawn *queriedEntityLocal
	for _, m := range queryEntityLayer(layers[2], ChunkView{Dist: 8}) {
		if m.tag.kind == entitySpawn {
			spawn = &m
		}
	}
	if spawn == nil || spawn.tag != (entityLocal{kind: entitySpawn, pos: ChunkPos{2, 0}, layer: 1}) {
		t.Errorf("new layer: got %v", spawn)
	}
	finish(layers, entities)
}

func TestEntityLayer_Despawn(t *testing.T) {
	layers := newTestEntityLayers(1)
	entities := NewEntities()
	h := entities.Spawn(&Entity{Layer: 1})
	step(layers, entities)
	finish(layers, entities)

	entities.Despawn(h)
	step(layers, entities)
	got := queryEntityLayer(layers[1], ChunkView{})
	if len(got) != 1 || got[0].tag.kind != entityDespawn || got[0].tag.layer != 0 {
		t.Fatalf("got %v", got)
	}
	finish(layers, entities)
	if entities.Get(h) != nil || entities.Len() != 0 {
		t.Error("despawned entity kept")
	}
}

func TestEntityLayer_ClientUpdatesSkipSelf(t *testing.T) {
	layers := newTestEntityLayers(1)
	entities := NewEntities()
	h := entities.Spawn(&Entity{Layer: 1, Client: true, Player: true})
	step(layers, entities)
	if got := queryEntityLayer(layers[1], ChunkView{}); len(got) != 1 {
		t.Errorf("first tick: want only the spawn, got %v", got)
	}
	finish(layers, entities)

	entities.Get(h).Rotation = Rotation{90, 0}
	step(layers, entities)
	got := queryEntityLayer(layers[1], ChunkView{})
	if len(got) != 1 || got[0].tag != (entityLocal{kind: entityPacketAtExcept, except: h}) {
		t.Errorf("got %v", got)
	}
	finish(layers, entities)
}

func TestEntityLayer_DespawnLayer(t *testing.T) {
	l := NewEntityLayer(3, -1)
	l.Despawn()
	l.Despawn()
	l.UpdatePreClient()
	var kinds []entityGlobalKind
	l.messages.IterGlobal(func(tag entityGlobal, _ []byte) { kinds = append(kinds, tag.kind) })
	if !l.Despawned() || !slices.Equal(kinds, []entityGlobalKind{entityDespawnLayer}) {
		t.Errorf("got %v", kinds)
	}
	l.UpdatePostClient()

	mustPanic(t, "NewEntityLayer(0)", func() { NewEntityLayer(0, -1) })
}

func TestEntities_Spawn(t *testing.T) {
	entities := NewEntities()
	a := entities.Spawn(&Entity{})
	b := entities.Spawn(&Entity{EntityID: 77})
	if a == 0 || b <= a {
		t.Errorf("handles: %d %d", a, b)
	}
	if entities.Get(b).EntityID != 77 {
		t.Error("given entity id replaced")
	}
	if ea, eb := entities.Get(a), entities.Get(b); ea.EntityID == 0 || ea.UUID == eb.UUID {
		t.Error("missing ids were not generated")
	}
}

func TestEntityLayer_SingleCell(t *testing.T) {
	layers := newTestEntityLayers(1, 2, 3)
	entities := NewEntities()
	r := rand.New(rand.NewSource(1))
	randomPos := func() Position {
		return Position{r.Float64()*128 - 64, 0, r.Float64()*128 - 64}
	}

	var live []*Entity
	for i := 0; i < 32; i++ {
		e := &Entity{Layer: 1, Position: randomPos()}
		entities.Spawn(e)
		live = append(live, e)
	}

	for round := 0; round < 64; round++ {
		for i := 0; i < len(live); i++ {
			e := live[i]
			switch n := r.Intn(10); {
			case n < 5:
				e.Position = randomPos()
			case n < 8:
				// Layer 4 does not exist, the entity is then in no layer.
				e.Layer = LayerID(r.Intn(4) + 1)
			case n < 9:
				e.Layer = LayerID(r.Intn(4) + 1)
				e.Position = randomPos()
			default:
				entities.Despawn(e.Handle())
				live = slices.Delete(live, i, i+1)
				i--
			}
		}
		step(layers, entities)
		finish(layers, entities)

		seen := make(map[EntityHandle]int)
		for id, l := range layers {
			for x := int32(-4); x < 4; x++ {
				for z := int32(-4); z < 4; z++ {
					for _, h := range l.EntitiesAt(ChunkPos{x, z}) {
						seen[h]++
						if e := entities.Get(h); e == nil || e.Layer != id || ChunkPosOf(e.Position) != (ChunkPos{x, z}) {
							t.Fatalf("round %d: %v is misplaced in layer %d at (%d, %d)", round, h, id, x, z)
						}
					}
				}
			}
		}
		for h, n := range seen {
			if n > 1 {
				t.Fatalf("round %d: %v is in %d cells", round, h, n)
			}
		}
		for _, e := range live {
			_, inLayer := layers[e.Layer]
			if n := seen[e.Handle()]; inLayer && n != 1 {
				t.Fatalf("round %d: %v is in %d cells, want 1", round, e.Handle(), n)
			}
		}
	}
}
