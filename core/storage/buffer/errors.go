package buffer

import "errors"

// ErrBufferPoolFull is the sentinel callers wrap when NewPage/FetchPage
// report failure. Those methods return a false flag rather than an error;
// that flag covers every frame being pinned with nothing left to evict,
// and also a failed disk read or page allocation.
var ErrBufferPoolFull = errors.New("buffer: pool exhausted, no evictable frame")
