// Object pools for the per-layer serialization path
//
// Every processed layer is rebuilt into a fresh string. The buffers used
// for that are recycled to keep the allocator quiet on large jobs.
//
// Usage:
//
//	b := pool.GetBuffer()
//	defer pool.PutBuffer(b)
//	// write output...
//	return b.String()
//
// Copyright (C) 2026 Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package pool

import (
	"bytes"
	"sync"
)

// Buffers larger than this are dropped instead of pooled.
const maxPooledCap = 4 << 20

var bufferPool = sync.Pool{
	New: func() any {
		return new(bytes.Buffer)
	},
}

// GetBuffer gets an empty buffer from the pool.
func GetBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

// PutBuffer returns a buffer to the pool. The buffer must not be used
// afterwards; strings already taken from it stay valid.
func PutBuffer(b *bytes.Buffer) {
	if b == nil || b.Cap() > maxPooledCap {
		return
	}
	b.Reset()
	bufferPool.Put(b)
}
