package utils

import "github.com/valyala/bytebufferpool"

// Shared pool for encoding outbound event payloads. bytebufferpool
// size-classes buffers internally, so a single pool serves request bodies
// of any size without fragmentation.
var encodePool bytebufferpool.Pool

// Get borrows a buffer from the shared pool.
func Get() *bytebufferpool.ByteBuffer {
	return encodePool.Get()
}

// Put returns a buffer to the shared pool. The buffer must not be used
// after this call.
func Put(buf *bytebufferpool.ByteBuffer) {
	encodePool.Put(buf)
}
