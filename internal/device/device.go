package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"

	"github.com/eleven-am/aria-assistant/internal/audio"
)

var (
	ErrMicrophoneUnavailable = errors.New("microphone unavailable")
	ErrPlaybackRateLocked    = errors.New("playback already opened at a different sample rate")
)

const (
	defaultPeriodMillis = 20
	defaultOutputBuffer = 4800
)

type Config struct {
	CaptureSampleRate int
	PeriodMillis      int
	OutputBufferBytes int
}

// Native is the host's audio hardware: malgo for the microphone, oto for
// the speakers. oto allows one context per process, so it is created once.
type Native struct {
	cfg    Config
	logger *slog.Logger

	malgoOnce sync.Once
	malgoCtx  *malgo.AllocatedContext
	malgoErr  error

	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
}

var _ audio.Device = (*Native)(nil)

func NewNative(cfg Config, logger *slog.Logger) *Native {
	if cfg.PeriodMillis <= 0 {
		cfg.PeriodMillis = defaultPeriodMillis
	}
	if cfg.OutputBufferBytes <= 0 {
		cfg.OutputBufferBytes = defaultOutputBuffer
	}
	return &Native{
		cfg:    cfg,
		logger: logger.With("component", "audio_device"),
	}
}

func (n *Native) context() (*malgo.AllocatedContext, error) {
	n.malgoOnce.Do(func() {
		n.malgoCtx, n.malgoErr = malgo.InitContext(nil, malgo.ContextConfig{
			ThreadPriority: malgo.ThreadPriorityRealtime,
		}, nil)
	})
	return n.malgoCtx, n.malgoErr
}

// RequestMicrophone opens and starts the default capture device.
func (n *Native) RequestMicrophone(ctx context.Context) (audio.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mctx, err := n.context()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}

	stream := newStream(n.cfg.CaptureSampleRate)

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 1
	cfg.SampleRate = uint32(n.cfg.CaptureSampleRate)
	cfg.PeriodSizeInMilliseconds = uint32(n.cfg.PeriodMillis)

	dev, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			stream.deliver(input)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("%w: %v", ErrMicrophoneUnavailable, err)
	}

	stream.track.device = dev
	n.logger.Debug("microphone opened", "sample_rate", n.cfg.CaptureSampleRate)
	return stream, nil
}

func (n *Native) OpenCapture(sampleRate int) (audio.CaptureContext, error) {
	return newCaptureContext(sampleRate), nil
}

func (n *Native) OpenPlayback(sampleRate int) (audio.PlaybackContext, error) {
	n.otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   n.cfg.OutputBufferBytes,
		})
		if err != nil {
			n.otoErr = err
			return
		}
		<-ready
		n.otoCtx = ctx
		n.otoRate = sampleRate
	})
	if n.otoErr != nil {
		return nil, fmt.Errorf("open speaker: %w", n.otoErr)
	}
	if sampleRate != n.otoRate {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrPlaybackRateLocked, n.otoRate, sampleRate)
	}

	mixer := audio.NewMixer(sampleRate)
	player := n.otoCtx.NewPlayer(mixer)
	player.Play()

	n.logger.Debug("playback opened", "sample_rate", sampleRate)
	return &playbackContext{Mixer: mixer, player: player}, nil
}

// Close releases the malgo context. Streams and pathways must be closed first.
func (n *Native) Close() error {
	if n.malgoCtx == nil {
		return nil
	}
	if err := n.malgoCtx.Uninit(); err != nil {
		return err
	}
	n.malgoCtx.Free()
	return nil
}
