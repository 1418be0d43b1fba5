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
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"FlowyLayer/client"
	"FlowyLayer/world"
	"github.com/Tnze/go-mc/chat"
	"github.com/Tnze/go-mc/data/packetid"
	"github.com/Tnze/go-mc/net"
	pk "github.com/Tnze/go-mc/net/packet"
	"github.com/Tnze/go-mc/save"
	"github.com/Tnze/go-mc/server"
	"github.com/Tnze/go-mc/yggdrasil/user"
)

type Game struct {
	log *zap.Logger

	config     Config
	serverInfo *server.PingInfo

	playerProvider world.PlayerProvider
	overworld      *world.World

	cancel context.CancelFunc

	globalChat globalChat
	*playerList
}

func NewGame(log *zap.Logger, config Config, pingList *server.PlayerList, serverInfo *server.PingInfo) (*Game, error) {
	if config.RegistryCodec != "" {
		if err := world.LoadNetworkCodec(config.RegistryCodec); err != nil {
			return nil, fmt.Errorf("load registry codec fail: %w", err)
		}
	}
	overworld, err := createWorld(log, filepath.Join(".", config.LevelName), &config)
	if err != nil {
		return nil, fmt.Errorf("load overworld fail: %w", err)
	}
	playerProvider := world.NewPlayerProvider(filepath.Join(".", config.LevelName, "playerdata"))

	keepAlive := server.NewKeepAlive()
	pl := playerList{pingList: pingList, keepAlive: keepAlive}
	keepAlive.AddPlayerDelayUpdateHandler(func(c server.KeepAliveClient, latency time.Duration) {
		pl.updateLatency(c.(*client.Client), latency)
	})
	ctx, cancel := context.WithCancel(context.Background())
	go keepAlive.Run(ctx)

	return &Game{
		log: log.Named("game"),

		config:     config,
		serverInfo: serverInfo,

		playerProvider: playerProvider,
		overworld:      overworld,

		cancel: cancel,

		globalChat: globalChat{
			log:           log.Named("chat"),
			players:       &pl,
			chatTypeCodec: &world.NetworkCodec.ChatType,
			limit:         config.ChatLimiter,
		},
		playerList: &pl,
	}, nil
}

func createWorld(logger *zap.Logger, path string, config *Config) (*world.World, error) {
	lv, err := readLevel(filepath.Join(path, "level.dat"))
	if err != nil {
		return nil, err
	}

	info := config.layerInfo()
	var store *world.ChunkStore
	if config.ChunkStore != "" {
		store, err = world.OpenChunkStore(filepath.Join(path, config.ChunkStore))
		if err != nil {
			return nil, err
		}
	}

	overworld := world.New(
		logger.Named("overworld"),
		world.NewProvider(filepath.Join(path, "region"), info.MinY, store, config.ChunkLoadingLimiter.Limiter()),
		world.Config{
			ViewDistance:  config.ViewDistance,
			SpawnAngle:    lv.Data.SpawnAngle,
			SpawnPosition: [3]int32{lv.Data.SpawnX, lv.Data.SpawnY, lv.Data.SpawnZ},
			Layer:         info,
			TickRate:      config.TickRate,
		},
	)
	return overworld, nil
}

func readLevel(path string) (lv save.Level, errRet error) {
	f, err := os.Open(path)
	if err != nil {
		return save.Level{}, err
	}
	defer func(f *os.File) {
		if err := f.Close(); errRet == nil && err != nil {
			errRet = fmt.Errorf("close level data fail: %w", err)
		}
	}(f)

	r, err := gzip.NewReader(f)
	if err != nil {
		return save.Level{}, err
	}
	return save.ReadLevel(r)
}

// Close stops the overworld and saves its chunks.
func (g *Game) Close() error {
	g.cancel()
	return g.overworld.Close()
}

// AcceptPlayer runs in its own goroutine for every player that finished
// logging in, and returns when the connection is closed.
func (g *Game) AcceptPlayer(name string, id uuid.UUID, profilePubKey *user.PublicKey, properties []user.Property, protocol int32, conn *net.Conn) {
	logger := g.log.With(
		zap.String("name", name),
		zap.String("uuid", id.String()),
		zap.Int32("protocol", protocol),
	)

	p, err := g.playerProvider.GetPlayer(name, id, profilePubKey, properties)
	if errors.Is(err, os.ErrNotExist) {
		spawn, angle := g.overworld.SpawnPositionAndAngle()
		p = world.NewPlayer(
			name,
			world.Position{float64(spawn[0]) + 0.5, float64(spawn[1]), float64(spawn[2]) + 0.5},
			world.Rotation{angle, 0},
		)
		p.UUID = id
		p.PubKey = profilePubKey
		p.Properties = properties
		p.Gamemode = 1
	} else if err != nil {
		logger.Error("Read player data error", zap.Error(err))
		return
	}

	c := client.New(logger, conn, p, g.config.NetworkCompressionThreshold)

	logger.Info("Player join", zap.Int32("eid", p.EntityID))
	defer logger.Info("Player left")

	c.SendLogin(g.overworld, p)
	c.SendServerData(g.serverInfo.Description(), g.serverInfo.FavIcon(), g.config.EnforceSecureProfile)

	joinMsg := chat.TranslateMsg("multiplayer.player.joined", chat.Text(p.Name)).SetColor(chat.Yellow)
	leftMsg := chat.TranslateMsg("multiplayer.player.left", chat.Text(p.Name)).SetColor(chat.Yellow)
	g.globalChat.broadcastSystemChat(joinMsg, false)
	defer g.globalChat.broadcastSystemChat(leftMsg, false)
	c.AddHandler(packetid.ServerboundChat, g.globalChat.Handle)
	defer g.globalChat.removePlayer(p.UUID)

	g.playerList.addPlayer(c, p)
	defer g.playerList.removePlayer(c)

	c.SendPlayerPosition(p.Position, p.Rotation)
	g.overworld.AddPlayer(c, p, g.config.PlayerChunkLoadingLimiter.Limiter())
	defer g.overworld.RemovePlayer(c, p)
	c.SendPacket(packetid.ClientboundUpdateTags, pk.Array(defaultTags))
	c.SendSetDefaultSpawnPosition(g.overworld.SpawnPositionAndAngle())

	c.Start()
}
