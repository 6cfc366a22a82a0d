// Copyright 2026 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package classpath provides an ordered, de-duplicated set of path elements.
package classpath

import (
	"os"
	"strings"

	"golang.org/x/exp/slices"
)

// Classpath is an ordered set of filesystem path elements. Adding an element
// that is already present is a no-op, so the first insertion position wins.
//
// The zero value is an empty classpath ready to use.
type Classpath struct {
	elems []string
}

// New returns a classpath containing elems, in order, without duplicates.
func New(elems ...string) *Classpath {
	cp := &Classpath{}
	cp.Add(elems...)
	return cp
}

// Add appends elems that are not yet present.
func (cp *Classpath) Add(elems ...string) {
	for _, e := range elems {
		if !slices.Contains(cp.elems, e) {
			cp.elems = append(cp.elems, e)
		}
	}
}

// AddAll appends all elements of other that are not yet present. other may be
// nil.
func (cp *Classpath) AddAll(other *Classpath) {
	if other == nil {
		return
	}
	cp.Add(other.elems...)
}

// Elements returns a copy of the elements in order.
func (cp *Classpath) Elements() []string {
	return slices.Clone(cp.elems)
}

// Contains reports whether elem is on the classpath.
func (cp *Classpath) Contains(elem string) bool {
	return slices.Contains(cp.elems, elem)
}

// IsEmpty reports whether the classpath has no elements.
func (cp *Classpath) IsEmpty() bool {
	return len(cp.elems) == 0
}

// Len returns the number of elements.
func (cp *Classpath) Len() int {
	return len(cp.elems)
}

// Clone returns an independent copy of cp.
func (cp *Classpath) Clone() *Classpath {
	return &Classpath{elems: slices.Clone(cp.elems)}
}

// String joins the elements with the platform path list separator.
func (cp *Classpath) String() string {
	return strings.Join(cp.elems, string(os.PathListSeparator))
}

// Parse splits s by the platform path list separator. Empty elements are
// dropped.
func Parse(s string) *Classpath {
	cp := &Classpath{}
	for _, e := range strings.Split(s, string(os.PathListSeparator)) {
		if e != "" {
			cp.Add(e)
		}
	}
	return cp
}
