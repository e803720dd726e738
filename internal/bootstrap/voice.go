package bootstrap

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/eleven-am/aria-assistant/internal/audio"
	"github.com/eleven-am/aria-assistant/internal/device"
	"github.com/eleven-am/aria-assistant/internal/live"
	"github.com/eleven-am/aria-assistant/internal/shell"
	"github.com/eleven-am/aria-assistant/internal/visualizer"
	"github.com/eleven-am/aria-assistant/internal/voice"
)

func ProvideDevice(cfg *Config, logger *slog.Logger) *device.Native {
	return device.NewNative(device.Config{
		CaptureSampleRate: cfg.InputSampleRate,
	}, logger)
}

func ProvideAudioDevice(d *device.Native) audio.Device {
	return d
}

func ProvideDialer(cfg *Config, logger *slog.Logger) live.Dialer {
	if cfg.LiveTransport == TransportSDK {
		return live.NewSDKDialer(cfg.APIKey, logger)
	}
	return live.NewWebSocketDialer(live.WebSocketConfig{
		Endpoint: cfg.LiveEndpoint,
		APIKey:   cfg.APIKey,
	}, logger)
}

func ProvideHub(logger *slog.Logger) *shell.Hub {
	return shell.NewHub(logger)
}

func ProvideVisualizer(cfg *Config, hub *shell.Hub, logger *slog.Logger) *visualizer.Loop {
	return visualizer.NewLoop(visualizer.NewTickerScheduler(cfg.VisualizerFPS), hub, cfg.VisualizerBars, logger)
}

func ProvideControllerConfig(cfg *Config) (voice.Config, error) {
	instruction, err := voice.LoadInstruction(voice.Persona{
		AssistantName: cfg.AssistantName,
		BusinessName:  cfg.BusinessName,
	}, cfg.PersonaFile)
	if err != nil {
		return voice.Config{}, err
	}

	return voice.Config{
		InputSampleRate:  cfg.InputSampleRate,
		OutputSampleRate: cfg.OutputSampleRate,
		FrameSize:        cfg.CaptureFrameSize,
		FFTSize:          cfg.AnalyserFFTSize,
		OutboundBuffer:   cfg.OutboundBuffer,
		Live: live.Config{
			Model:             cfg.LiveModel,
			Voice:             cfg.LiveVoice,
			SystemInstruction: instruction,
			ResponseModality:  live.ModalityAudio,
			InputSampleRate:   cfg.InputSampleRate,
		},
	}, nil
}

func ProvideController(cfg voice.Config, dev audio.Device, dialer live.Dialer, viz *visualizer.Loop, logger *slog.Logger) *voice.Controller {
	return voice.NewController(cfg, dev, dialer, viz, logger)
}

func ProvideWidget(ctrl *voice.Controller, logger *slog.Logger) *shell.Widget {
	return shell.NewWidget(ctrl, logger)
}

type VoiceLifecycleParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Device     *device.Native
	Controller *voice.Controller
	Widget     *shell.Widget
	Hub        *shell.Hub
	Logger     *slog.Logger
}

// RegisterVoiceLifecycle forwards widget snapshots to event clients and
// releases the session, the event clients and the hardware on shutdown.
func RegisterVoiceLifecycle(p VoiceLifecycleParams) {
	var unsubscribe func()

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			unsubscribe = p.Widget.Subscribe(p.Hub.PublishState)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if unsubscribe != nil {
				unsubscribe()
			}
			p.Widget.Shutdown()
			p.Hub.Close()
			if err := p.Controller.Close(); err != nil {
				p.Logger.Warn("close voice controller", "error", err)
			}
			if err := p.Device.Close(); err != nil {
				p.Logger.Warn("close audio device", "error", err)
			}
			return nil
		},
	})
}

var VoiceModule = fx.Options(
	fx.Provide(
		ProvideDevice,
		ProvideAudioDevice,
		ProvideDialer,
		ProvideHub,
		ProvideVisualizer,
		ProvideControllerConfig,
		ProvideController,
		ProvideWidget,
	),
	fx.Invoke(RegisterVoiceLifecycle),
)
