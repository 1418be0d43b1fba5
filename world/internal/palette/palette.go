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

// Package palette implements the fixed-size paletted containers used to store
// the block states and biomes of a chunk section.
//
// A container is always in exactly one of three forms:
//
//   - single: every cell holds the same value and no per-cell storage exists.
//   - indirect: up to 16 distinct values in a palette, cells are 4-bit indices.
//   - direct: one full value per cell.
//
// Mutation only promotes single -> indirect -> direct. Optimize is the only
// way back to a smaller form.
package palette

import (
	"fmt"
)

// MaxIndirectLen is the largest palette an indirect container can hold.
const MaxIndirectLen = 16

type form uint8

const (
	single form = iota
	indirect
	direct
)

// Container is a fixed-length array of values of type T.
// The zero value is not usable, create containers with New.
type Container[T comparable] struct {
	form form
	n    int

	value T // single

	palette []T    // indirect
	indices []byte // indirect, two 4-bit indices per byte, low nibble first

	cells []T // direct
}

// New creates a container of n cells all holding v. n must be even.
func New[T comparable](n int, v T) Container[T] {
	if n <= 0 || n%2 != 0 {
		panic(fmt.Sprintf("palette: invalid container length %d", n))
	}
	return Container[T]{form: single, n: n, value: v}
}

// Len returns the number of cells.
func (c *Container[T]) Len() int { return c.n }

// Single reports whether all the cells share one value, and returns it.
func (c *Container[T]) Single() (v T, ok bool) {
	if c.form == single {
		return c.value, true
	}
	return v, false
}

// PaletteLen is the number of distinct values tracked by the current form.
// It is zero for direct containers.
func (c *Container[T]) PaletteLen() int {
	switch c.form {
	case single:
		return 1
	case indirect:
		return len(c.palette)
	}
	return 0
}

// IsDirect reports whether the container stores a full value per cell.
func (c *Container[T]) IsDirect() bool { return c.form == direct }

func (c *Container[T]) checkIndex(i int) {
	if i < 0 || i >= c.n {
		panic(fmt.Sprintf("palette: index %d out of range [0, %d)", i, c.n))
	}
}

// Get returns the value at i.
func (c *Container[T]) Get(i int) T {
	c.checkIndex(i)
	switch c.form {
	case single:
		return c.value
	case indirect:
		return c.palette[c.index(i)]
	default:
		return c.cells[i]
	}
}

// Set stores v at i and returns the previous value.
func (c *Container[T]) Set(i int, v T) (old T) {
	c.checkIndex(i)
	switch c.form {
	case single:
		old = c.value
		if old != v {
			c.form = indirect
			c.palette = append(make([]T, 0, MaxIndirectLen), old, v)
			c.indices = make([]byte, c.n/2)
			c.setIndex(i, 1)
		}
		return old
	case indirect:
		if old, ok := c.setIndirect(i, v); ok {
			return old
		}
		c.toDirect()
		fallthrough
	default:
		old = c.cells[i]
		c.cells[i] = v
		return old
	}
}

// setIndirect stores v at i, growing the palette if needed.
// It returns false when the palette is full and v is not in it.
func (c *Container[T]) setIndirect(i int, v T) (old T, ok bool) {
	for idx, pv := range c.palette {
		if pv == v {
			old = c.palette[c.index(i)]
			c.setIndex(i, byte(idx))
			return old, true
		}
	}
	if len(c.palette) >= MaxIndirectLen {
		return old, false
	}
	c.palette = append(c.palette, v)
	old = c.palette[c.index(i)]
	c.setIndex(i, byte(len(c.palette)-1))
	return old, true
}

func (c *Container[T]) index(i int) byte {
	return c.indices[i/2] >> (i % 2 * 4) & 0xF
}

func (c *Container[T]) setIndex(i int, idx byte) {
	shift := i % 2 * 4
	b := &c.indices[i/2]
	*b = *b&^(0xF<<shift) | idx<<shift
}

func (c *Container[T]) toDirect() {
	cells := make([]T, c.n)
	for i := range cells {
		cells[i] = c.palette[c.index(i)]
	}
	c.form = direct
	c.cells = cells
	c.palette, c.indices = nil, nil
}

// Fill sets every cell to v.
func (c *Container[T]) Fill(v T) {
	*c = Container[T]{form: single, n: c.n, value: v}
}

// Optimize converts the container to the smallest form able to hold its
// current values. No Get result changes.
func (c *Container[T]) Optimize() {
	if c.form == single {
		return
	}
	rebuilt := Container[T]{
		form:    indirect,
		n:       c.n,
		palette: make([]T, 0, MaxIndirectLen),
		indices: make([]byte, c.n/2),
	}
	for i := 0; i < c.n; i++ {
		if _, ok := rebuilt.setIndirect(i, c.Get(i)); !ok {
			// Only a direct container can hold more than 16 values.
			return
		}
	}
	if len(rebuilt.palette) == 1 {
		rebuilt = Container[T]{form: single, n: c.n, value: rebuilt.palette[0]}
	}
	*c = rebuilt
}

// Count returns the number of cells for which f returns true.
func (c *Container[T]) Count(f func(T) bool) (n int) {
	switch c.form {
	case single:
		if f(c.value) {
			return c.n
		}
	case indirect:
		match := make([]bool, len(c.palette))
		for i, v := range c.palette {
			match[i] = f(v)
		}
		for i := 0; i < c.n; i++ {
			if match[c.index(i)] {
				n++
			}
		}
	default:
		for _, v := range c.cells {
			if f(v) {
				n++
			}
		}
	}
	return
}

// Clone returns a deep copy of c.
func (c *Container[T]) Clone() Container[T] {
	clone := *c
	if c.palette != nil {
		clone.palette = append(make([]T, 0, MaxIndirectLen), c.palette...)
	}
	if c.indices != nil {
		clone.indices = append([]byte(nil), c.indices...)
	}
	if c.cells != nil {
		clone.cells = append([]T(nil), c.cells...)
	}
	return clone
}
