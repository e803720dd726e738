package device

import (
	"fmt"
	"sync"

	"github.com/eleven-am/aria-assistant/internal/audio"
)

type captureContext struct {
	sampleRate int

	mu     sync.Mutex
	closed bool
	nodes  map[*captureNode]struct{}
}

func newCaptureContext(sampleRate int) *captureContext {
	return &captureContext{
		sampleRate: sampleRate,
		nodes:      make(map[*captureNode]struct{}),
	}
}

func (c *captureContext) SampleRate() int {
	return c.sampleRate
}

// Connect frames the stream's samples into fixed-size frames for onFrame.
func (c *captureContext) Connect(ms audio.MediaStream, frameSize int, onFrame func([]float32)) (audio.CaptureNode, error) {
	s, ok := ms.(*stream)
	if !ok {
		return nil, fmt.Errorf("unsupported media stream %T", ms)
	}
	if s.sampleRate != c.sampleRate {
		return nil, fmt.Errorf("%w: stream %d, context %d", audio.ErrSampleRateMismatch, s.sampleRate, c.sampleRate)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, audio.ErrContextClosed
	}

	node := &captureNode{ctx: c, stream: s, framer: audio.NewFramer(frameSize, onFrame)}
	node.id = s.attach(node.framer.Write)
	c.nodes[node] = struct{}{}
	return node, nil
}

func (c *captureContext) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	nodes := make([]*captureNode, 0, len(c.nodes))
	for n := range c.nodes {
		nodes = append(nodes, n)
	}
	c.mu.Unlock()

	for _, n := range nodes {
		n.Disconnect()
	}
	return nil
}

type captureNode struct {
	ctx    *captureContext
	stream *stream
	framer *audio.Framer
	id     int
	once   sync.Once
}

func (n *captureNode) Disconnect() {
	n.once.Do(func() {
		n.stream.detach(n.id)
		n.framer.Reset()

		n.ctx.mu.Lock()
		delete(n.ctx.nodes, n)
		n.ctx.mu.Unlock()
	})
}
