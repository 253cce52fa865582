package session

import (
	"io"
	"sync"

	"github.com/reddiedev/tenext-app/pkg/metrics"
)

// streamReader guards the response body so it is closed exactly once, whether
// the session ends normally, fails, panics, or is torn down from outside.
type streamReader struct {
	rc   io.ReadCloser
	once sync.Once
	err  error
}

func newStreamReader(rc io.ReadCloser) *streamReader {
	metrics.StreamReadersOpen.Inc()
	return &streamReader{rc: rc}
}

func (r *streamReader) Read(p []byte) (int, error) {
	return r.rc.Read(p)
}

// Release closes the body. Only the first call has an effect.
func (r *streamReader) Release() error {
	r.once.Do(func() {
		r.err = r.rc.Close()
		metrics.StreamReadersOpen.Dec()
	})
	return r.err
}
