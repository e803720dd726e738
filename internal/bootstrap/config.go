package bootstrap

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/eleven-am/aria-assistant/internal/live"
	"github.com/eleven-am/aria-assistant/internal/visualizer"
	"github.com/eleven-am/aria-assistant/internal/voice"
)

const (
	TransportWebSocket = "websocket"
	TransportSDK       = "sdk"
)

type Config struct {
	ServerAddr string `validate:"required"`
	LogLevel   string `validate:"oneof=debug info warn error"`

	APIKey        string
	LiveTransport string `validate:"oneof=websocket sdk"`
	LiveEndpoint  string `validate:"required_if=LiveTransport websocket"`
	LiveModel     string `validate:"required"`
	LiveVoice     string

	AssistantName string `validate:"required"`
	BusinessName  string `validate:"required"`
	PersonaFile   string `validate:"omitempty,file"`

	InputSampleRate  int `validate:"min=8000,max=48000"`
	OutputSampleRate int `validate:"min=8000,max=48000"`
	CaptureFrameSize int `validate:"oneof=256 512 1024 2048 4096 8192 16384"`
	AnalyserFFTSize  int `validate:"oneof=32 64 128 256 512 1024 2048 4096 8192 16384 32768"`
	OutboundBuffer   int `validate:"min=1"`

	VisualizerBars int `validate:"min=1,max=512"`
	VisualizerFPS  int `validate:"min=1,max=240"`

	CommandRPS   float64 `validate:"gt=0"`
	CommandBurst int     `validate:"min=1"`
}

// LoadConfig reads the environment, with a .env file in the working
// directory taking the place of unset variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		APIKey:        getEnv("GEMINI_API_KEY", os.Getenv("API_KEY")),
		LiveTransport: getEnv("LIVE_TRANSPORT", TransportWebSocket),
		LiveEndpoint:  getEnv("LIVE_ENDPOINT", live.DefaultEndpoint),
		LiveModel:     getEnv("LIVE_MODEL", voice.DefaultModel),
		LiveVoice:     getEnv("LIVE_VOICE", voice.DefaultVoice),

		AssistantName: getEnv("ASSISTANT_NAME", voice.DefaultAssistantName),
		BusinessName:  getEnv("BUSINESS_NAME", voice.DefaultBusinessName),
		PersonaFile:   getEnv("PERSONA_FILE", ""),

		InputSampleRate:  getEnvInt("INPUT_SAMPLE_RATE", 16000),
		OutputSampleRate: getEnvInt("OUTPUT_SAMPLE_RATE", 24000),
		CaptureFrameSize: getEnvInt("CAPTURE_FRAME_SIZE", 4096),
		AnalyserFFTSize:  getEnvInt("ANALYSER_FFT_SIZE", 256),
		OutboundBuffer:   getEnvInt("OUTBOUND_BUFFER", live.DefaultSenderBuffer),

		VisualizerBars: getEnvInt("VISUALIZER_BARS", visualizer.DefaultBars),
		VisualizerFPS:  getEnvInt("VISUALIZER_FPS", visualizer.DefaultFPS),

		CommandRPS:   getEnvFloat("COMMAND_RPS", 2),
		CommandBurst: getEnvInt("COMMAND_BURST", 5),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
