package docker

import (
	"io"
	"sync"

	"github.com/docker/docker/pkg/stdcopy"
)

// demuxedStream splits the engine's multiplexed log framing into one plain
// byte stream. Closing it closes the engine connection, which ends the copy.
type demuxedStream struct {
	*io.PipeReader
	src  io.ReadCloser
	once sync.Once
}

func demux(src io.ReadCloser) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(pw, pw, src)
		_ = pw.CloseWithError(err)
	}()
	return &demuxedStream{PipeReader: pr, src: src}
}

func (s *demuxedStream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.src.Close()
		_ = s.PipeReader.Close()
	})
	return err
}
