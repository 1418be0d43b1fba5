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


package game

import (
	"bytes"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"

	"FlowyLayer/world"
)

const testConfig = `
max-players = 20
view-distance = 12
listen-address = "0.0.0.0:25565"
motd = "A FlowyLayer Server"
network-compression-threshold = 256
online-mode = false
level-name = "world"
enforce-secure-profile = false
chunk-store = "chunks.db"
tick-rate = 20
min-y = 0
height = 256

[chunk-loading-limiter]
every = "50ms"
n = 100

[player-chunk-loading-limiter]
every = "100ms"
n = 50

[chat-limiter]
every = "1s"
n = 2
`

func TestConfig_Decode(t *testing.T) {
	var c Config
	meta, err := toml.Decode(testConfig, &c)
	if err != nil {
		t.Fatal(err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		t.Errorf("unknown keys: %v", undecoded)
	}
	if c.ChunkLoadingLimiter.Every.Duration != 50*time.Millisecond || c.ChunkLoadingLimiter.N != 100 {
		t.Errorf("limiter: %+v", c.ChunkLoadingLimiter)
	}
	if l := c.PlayerChunkLoadingLimiter.Limiter(); l.Burst() != 50 {
		t.Errorf("burst: got %d", l.Burst())
	}

	if c.ChatLimiter.N != 2 {
		t.Errorf("chat limiter: %+v", c.ChatLimiter)
	}

	info := c.layerInfo()
	if info.MinY != 0 || info.Height != 256 || info.Threshold != 256 {
		t.Errorf("layer info: %+v", info)
	}
	if info.BiomeCount != world.DefaultLayerInfo.BiomeCount {
		t.Errorf("biome count: got %d", info.BiomeCount)
	}
}

func TestConfig_DefaultLayer(t *testing.T) {
	c := Config{NetworkCompressionThreshold: -1}
	info := c.layerInfo()
	if info.MinY != world.DefaultLayerInfo.MinY || info.Height != world.DefaultLayerInfo.Height || info.Threshold != -1 {
		t.Errorf("got %+v", info)
	}
}

func TestTag_WriteTo(t *testing.T) {
	tag := Tag[int32]{Name: "minecraft:fluid", Values: map[string][]int32{"minecraft:water": {1, 2}}}
	var buf bytes.Buffer
	n, err := tag.WriteTo(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
	}
	want := append([]byte{15}, "minecraft:fluid"...)
	want = append(want, 1, 15)
	want = append(want, "minecraft:water"...)
	want = append(want, 2, 1, 2)
	if !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("want %v, got %v", want, buf.Bytes())
	}
}

func TestExistInvalidCharacter(t *testing.T) {
	for msg, want := range map[string]bool{
		"hello":       false,
		"héllo wörld": false,
		"§cred":       true,
		"tab\there":   true,
		"del\x7f":     true,
	} {
		if got := existInvalidCharacter(msg); got != want {
			t.Errorf("%q: want %v, got %v", msg, want, got)
		}
	}
}

func TestGlobalChat_Limit(t *testing.T) {
	g := globalChat{limit: Limiter{Every: duration{time.Hour}, N: 2}}
	a, b := uuid.New(), uuid.New()
	if !g.allow(a) || !g.allow(a) {
		t.Fatal("burst was not allowed")
	}
	if g.allow(a) {
		t.Error("third message was allowed")
	}
	if !g.allow(b) {
		t.Error("limit is shared between players")
	}
	g.removePlayer(a)
	if !g.allow(a) {
		t.Error("limiter survived the player")
	}

	var unlimited globalChat
	for i := 0; i < 100; i++ {
		if !unlimited.allow(a) {
			t.Fatalf("unset limiter refused message %d", i)
		}
	}
}
