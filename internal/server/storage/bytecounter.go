package storage

import (
	"io"

	"github.com/thilojaeggi/fynncloud-backend/internal/common"
)

// ByteCountingBody wraps an inbound stream with a running byte counter and
// a hard ceiling. It is a pull-based pipeline stage: the provider sink
// pulls from it exactly as it would from the raw body, so backpressure and
// cancellation propagate unchanged.
type ByteCountingBody struct {
	r             io.Reader
	maxAllowed    int64
	bytesReceived int64
	lastErr       error
}

// NewByteCountingBody wraps r, failing a Read once more than maxAllowed
// bytes have been pulled through it.
func NewByteCountingBody(r io.Reader, maxAllowed int64) *ByteCountingBody {
	return &ByteCountingBody{r: r, maxAllowed: maxAllowed}
}

// Read satisfies io.Reader. It always reads one byte past the remaining
// allowance (mirroring net/http.MaxBytesReader's overrun probe) so that
// landing exactly on the ceiling is never mistaken for exceeding it: only
// a read that actually produces more than the allowance trips the guard.
func (b *ByteCountingBody) Read(p []byte) (int, error) {
	remaining := b.maxAllowed - b.bytesReceived
	if remaining < 0 {
		return 0, common.ErrOversizeStream
	}

	probe := p
	if int64(len(probe)) > remaining+1 {
		probe = probe[:remaining+1]
	}

	n, err := b.r.Read(probe)
	if int64(n) > remaining {
		b.bytesReceived += remaining
		b.lastErr = common.ErrOversizeStream
		return int(remaining), common.ErrOversizeStream
	}

	b.bytesReceived += int64(n)
	return n, err
}

// BytesReceived reports how much was actually pulled through so far. This
// is the single source of truth for actual_bytes once the stream closes.
func (b *ByteCountingBody) BytesReceived() int64 {
	return b.bytesReceived
}

// err reports the guard's own terminal error, if any, independent of
// whatever an SDK call wrapped it into. Callers that hand this reader to a
// client library (which may not preserve error identity through its own
// wrapping) check this after the call returns.
func (b *ByteCountingBody) err() error {
	return b.lastErr
}
