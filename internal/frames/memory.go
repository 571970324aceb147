package frames

import (
	"context"
	"image"
	"io"
)

// MemorySource serves pre-rendered images as a FrameSource. It backs
// synthetic inputs such as generated test patterns.
type MemorySource struct {
	info   SourceInfo
	images []*image.RGBA
	pos    int
	closed bool
}

// NewMemorySource wraps images as a constant frame rate source
func NewMemorySource(fps float64, images []*image.RGBA) *MemorySource {
	info := SourceInfo{FPS: fps}
	if len(images) > 0 {
		b := images[0].Bounds()
		info.Width, info.Height = b.Dx(), b.Dy()
	}
	if fps > 0 {
		info.Duration = float64(len(images)) / fps
	}
	return &MemorySource{info: info, images: images}
}

func (m *MemorySource) Info() SourceInfo {
	return m.info
}

func (m *MemorySource) ReadFrame() (*image.RGBA, error) {
	if m.closed || m.pos >= len(m.images) {
		return nil, io.EOF
	}
	img := m.images[m.pos]
	m.pos++
	return img, nil
}

func (m *MemorySource) Close() error {
	m.closed = true
	return nil
}

// Closed reports whether Close has been called
func (m *MemorySource) Closed() bool {
	return m.closed
}

// MemoryDecoder opens the same in-memory clip for any path
type MemoryDecoder struct {
	FPS    float64
	Images []*image.RGBA

	// Last is the most recently opened source
	Last *MemorySource
}

func (d *MemoryDecoder) Open(ctx context.Context, path string) (FrameSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.Last = NewMemorySource(d.FPS, d.Images)
	return d.Last, nil
}
