package cloud

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const progressInterval = 500 * time.Millisecond

// ProgressReader counts bytes read and reports them on a ticker. Close
// stops the ticker after one final report.
type ProgressReader struct {
	io.Reader
	Total      int64
	OnProgress func(current, total int64)

	current atomic.Int64
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func NewProgressReader(total int64, r io.Reader, onProgress func(current, total int64)) *ProgressReader {
	p := &ProgressReader{
		Reader:     r,
		Total:      total,
		OnProgress: onProgress,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	if onProgress != nil {
		go p.loop()
	} else {
		close(p.done)
	}
	return p
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.Reader.Read(b)
	p.current.Add(int64(n))
	return n, err
}

// Current returns the number of bytes read so far.
func (p *ProgressReader) Current() int64 {
	return p.current.Load()
}

func (p *ProgressReader) Close() {
	p.once.Do(func() { close(p.quit) })
	<-p.done
}

func (p *ProgressReader) loop() {
	defer close(p.done)
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.OnProgress(p.current.Load(), p.Total)
		case <-p.quit:
			p.OnProgress(p.current.Load(), p.Total)
			return
		}
	}
}

// PrintProgress returns a progress callback that redraws a single
// "downloaded X of Y (P%)" line on w.
func PrintProgress(w io.Writer) func(current, total int64) {
	return func(current, total int64) {
		pct := 0.0
		if total > 0 {
			pct = float64(current) * 100 / float64(total)
		}
		fmt.Fprintf(w, "\r  downloaded %s of %s (%.1f%%)", HumanSize(current), HumanSize(total), pct)
		if total > 0 && current >= total {
			fmt.Fprintln(w)
		}
	}
}
