// Package bufpool provides reusable copy buffers for streaming I/O.
//
// Upload capture and download delivery both move multi-megabyte G-code
// files chunk by chunk; pooling the chunk buffers keeps those paths
// allocation-free under concurrent transfers.
package bufpool

import "sync"

// StreamBufferSize is the chunk size used for upload and download copies.
const StreamBufferSize = 32 * 1024

// Pooled pointers keep sync.Pool from allocating on every Put.
var pool = sync.Pool{
	New: func() any {
		b := make([]byte, StreamBufferSize)
		return &b
	},
}

// Get returns a buffer of StreamBufferSize bytes, suitable for
// io.CopyBuffer or manual read loops.
func Get() []byte {
	return *pool.Get().(*[]byte)
}

// Put returns a buffer obtained from Get to the pool. Buffers of other
// sizes are dropped.
func Put(buf []byte) {
	if cap(buf) != StreamBufferSize {
		return
	}
	buf = buf[:StreamBufferSize]
	pool.Put(&buf)
}
