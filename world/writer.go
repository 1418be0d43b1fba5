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
	"bytes"
	"fmt"
	"io"

	"github.com/Tnze/go-mc/data/packetid"
	pk "github.com/Tnze/go-mc/net/packet"
)

// PacketWriter frames clientbound packets into a byte stream ready to be
// written to a connection. Packets are compressed when they reach
// Threshold bytes; a negative threshold disables compression.
type PacketWriter struct {
	W         io.Writer
	Threshold int
	data      bytes.Buffer
}

// NewPacketWriter returns a writer appending to w.
func NewPacketWriter(w io.Writer, threshold int) *PacketWriter {
	return &PacketWriter{W: w, Threshold: threshold}
}

// WritePacket encodes and frames one packet. Encoding into memory cannot
// fail for well formed fields, so any error panics.
func (w *PacketWriter) WritePacket(id packetid.ClientboundPacketID, fields ...pk.FieldEncoder) {
	w.data.Reset()
	for i := range fields {
		if _, err := fields[i].WriteTo(&w.data); err != nil {
			panic(fmt.Errorf("marshal packet 0x%02X fail: %w", int32(id), err))
		}
	}
	p := pk.Packet{ID: int32(id), Data: w.data.Bytes()}
	if err := p.Pack(w.W, w.Threshold); err != nil {
		panic(fmt.Errorf("pack packet 0x%02X fail: %w", int32(id), err))
	}
}

// WritePacketBytes appends already framed packets.
func (w *PacketWriter) WritePacketBytes(b []byte) {
	if _, err := w.W.Write(b); err != nil {
		panic(fmt.Errorf("write packet bytes fail: %w", err))
	}
}

