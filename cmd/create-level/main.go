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


// Command create-level writes the level.dat of an empty creative world.
package main

import (
	"compress/gzip"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Tnze/go-mc/nbt"
	"github.com/Tnze/go-mc/save"
)

var (
	levelName = flag.String("level", "world", "Level directory")
	spawnX    = flag.Int("x", 48, "Spawn X")
	spawnY    = flag.Int("y", 100, "Spawn Y")
	spawnZ    = flag.Int("z", 35, "Spawn Z")
)

func main() {
	flag.Parse()
	if err := createLevel(*levelName); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func createLevel(dir string) (errRet error) {
	level := &save.Level{
		Data: save.LevelData{
			Version: struct {
				ID       int32 `nbt:"Id"`
				Name     string
				Series   string
				Snapshot byte
			}{
				ID:     3337,
				Name:   "1.19.4",
				Series: "main",
			},
			LevelName:      filepath.Base(dir),
			GameType:       1,
			LastPlayed:     time.Now().UnixMilli(),
			SpawnX:         int32(*spawnX),
			SpawnY:         int32(*spawnY),
			SpawnZ:         int32(*spawnZ),
			Difficulty:     2,
			GameRules:      make(map[string]string),
			DataVersion:    3337,
			Initialized:    true,
			StorageVersion: 19133,
		},
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, "level.dat"))
	if err != nil {
		return err
	}
	defer func(f *os.File) {
		if err := f.Close(); errRet == nil {
			errRet = err
		}
	}(f)

	gw := gzip.NewWriter(f)
	if err := nbt.NewEncoder(gw).Encode(level, ""); err != nil {
		return fmt.Errorf("encode level data fail: %w", err)
	}
	return gw.Close()
}
