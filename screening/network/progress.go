package network

import (
	"io"
)

// progressReader hands out at most bufferSize bytes per Read and reports the fraction read so far.
type progressReader struct {
	reader     io.Reader
	total      int64
	read       int64
	bufferSize int
	onProgress func(float64)
}

func newProgressReader(reader io.Reader, total int64, bufferSize int, onProgress func(float64)) *progressReader {
	return &progressReader{
		reader:     reader,
		total:      total,
		bufferSize: bufferSize,
		onProgress: onProgress,
	}
}

func (r *progressReader) Read(p []byte) (int, error) {
	if len(p) > r.bufferSize {
		p = p[:r.bufferSize]
	}

	n, err := r.reader.Read(p)
	if n > 0 {
		r.read += int64(n)
		r.report()
	}
	return n, err
}

// Len is used by retryablehttp to determine the content length.
func (r *progressReader) Len() int {
	return int(r.total - r.read)
}

func (r *progressReader) report() {
	if r.onProgress == nil || r.total == 0 {
		return
	}

	progress := float64(r.read) / float64(r.total)
	if progress > 1 {
		progress = 1
	}
	r.onProgress(progress)
}
