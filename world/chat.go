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

import "time"

// SetLastChatTimestamp records the timestamp of a chat message. It
// returns false if the message is older than the previous one, which
// means the client sent them out of order.
//
// Chat state is only touched by the connection goroutine of the player.
func (p *Player) SetLastChatTimestamp(t time.Time) bool {
	if p.lastChatTimestamp.Before(t) {
		p.lastChatTimestamp = t
		return true
	}
	return false
}

// GetPrevChatSignature returns the signature of the last signed message,
// which the next message of the chain refers to.
func (p *Player) GetPrevChatSignature() []byte {
	return p.lastChatSignature
}

func (p *Player) SetPrevChatSignature(sig []byte) {
	p.lastChatSignature = sig
}

// ChatEnabled reports whether the client accepts chat messages. Clients
// showing commands only or nothing may not send chat either.
func (p *Player) ChatEnabled() bool {
	p.Inputs.Lock()
	defer p.Inputs.Unlock()
	return p.Inputs.ChatMode == 0
}
