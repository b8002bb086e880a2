package dispatch

import "io"

// concatHandles concatenates several read handles into one
// io.ReadCloser, reading each to exhaustion before moving to the next.
// Used by Select/Dist's Retrieve, which fan a request out across
// multiple lanes (each with its own store) and so cannot share a single
// handle.Gatherer the way Local does.
func concatHandles(handles []io.ReadCloser) io.ReadCloser {
	readers := make([]io.Reader, len(handles))
	for i, h := range handles {
		readers[i] = h
	}
	return &multiHandleCloser{r: io.MultiReader(readers...), handles: handles}
}

type multiHandleCloser struct {
	r       io.Reader
	handles []io.ReadCloser
}

func (m *multiHandleCloser) Read(p []byte) (int, error) { return m.r.Read(p) }

func (m *multiHandleCloser) Close() error {
	var first error
	for _, h := range m.handles {
		if err := h.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
