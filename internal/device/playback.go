package device

import (
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/eleven-am/aria-assistant/internal/audio"
)

// playbackContext is a mixer pulled by an oto player.
type playbackContext struct {
	*audio.Mixer
	player *oto.Player
	once   sync.Once
}

func (p *playbackContext) Close() error {
	var err error
	p.once.Do(func() {
		err = p.Mixer.Close()
		if cerr := p.player.Close(); err == nil {
			err = cerr
		}
	})
	return err
}
