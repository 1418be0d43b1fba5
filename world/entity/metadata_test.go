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


package entity

import (
	"bytes"
	"testing"
)

func TestMetadataSet_Set(t *testing.T) {
	var m MetadataSet
	m.Set(6, Pose(1))
	m.Set(0, Byte(0x02))
	m.Set(6, Pose(5))
	if len(m) != 2 || m[0].Index != 0 || m[1].Index != 6 {
		t.Fatalf("got %v", m)
	}
	if m[1].MetadataValue != Pose(5) {
		t.Errorf("value not replaced: %v", m[1].MetadataValue)
	}
}

func TestMetadataSet_WriteTo(t *testing.T) {
	var m MetadataSet
	m.Set(0, Byte(0x20))
	m.Set(2, Boolean(true))

	var buf bytes.Buffer
	n, err := m.WriteTo(&buf)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0, 0, 0x20, 2, 8, 1, 0xFF}
	if !bytes.Equal(buf.Bytes(), want) || n != int64(len(want)) {
		t.Errorf("want %v, got %v (%d)", want, buf.Bytes(), n)
	}

	buf.Reset()
	if _, err := MetadataSet(nil).WriteTo(&buf); err != nil || !bytes.Equal(buf.Bytes(), []byte{0xFF}) {
		t.Errorf("empty set: got %v", buf.Bytes())
	}
}
