package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

const (
	EngineONNX = "onnx"
	EngineMock = "mock"
)

// maxUploadMB keeps MaxUploadBytes far from overflowing int64.
const maxUploadMB = 1024

type Config struct {
	HTTPPort        uint
	ModelPath       string
	MetadataPath    string
	OnnxLibPath     string
	Engine          string
	MockDigit       int
	MaxUploadMB     int64
	ShutdownTimeout time.Duration
	Debug           bool
}

func defaults() Config {
	return Config{
		HTTPPort:        8080,
		ModelPath:       "models/model.onnx",
		MetadataPath:    "models/model_metadata.json",
		Engine:          EngineONNX,
		MockDigit:       7,
		MaxUploadMB:     10,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Load builds the configuration from defaults, then the environment, then args.
// Flags given explicitly on the command line win over environment variables.
func Load(args []string, getenv func(string) string) (Config, error) {
	cfg := defaults()
	if getenv == nil {
		getenv = os.Getenv
	}

	if err := fromEnv(&cfg, getenv); err != nil {
		return cfg, err
	}

	fs := flag.NewFlagSet("digit-api", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.UintVar(&cfg.HTTPPort, "http_port", cfg.HTTPPort, "The http port to listen on, eg, 8081")
	fs.StringVar(&cfg.ModelPath, "model", cfg.ModelPath, "path to the ONNX model")
	fs.StringVar(&cfg.MetadataPath, "metadata", cfg.MetadataPath, "path to the model metadata json")
	fs.StringVar(&cfg.OnnxLibPath, "onnx_lib", cfg.OnnxLibPath, "path to the onnxruntime shared library")
	fs.StringVar(&cfg.Engine, "engine", cfg.Engine, "classifier engine: onnx or mock")
	fs.IntVar(&cfg.MockDigit, "mock_digit", cfg.MockDigit, "digit returned by the mock engine")
	fs.Int64Var(&cfg.MaxUploadMB, "max_upload_mb", cfg.MaxUploadMB, "maximum upload size in megabytes")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown_timeout", cfg.ShutdownTimeout, "grace period for in-flight requests")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "sets debug flag, program will print more messages")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	return cfg, cfg.validate()
}

func fromEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.HTTPPort = uint(port)
	}
	if v := getenv("MODEL_PATH"); v != "" {
		cfg.ModelPath = v
	}
	if v := getenv("METADATA_PATH"); v != "" {
		cfg.MetadataPath = v
	}
	if v := getenv("ONNXRUNTIME_LIB"); v != "" {
		cfg.OnnxLibPath = v
	}
	if v := getenv("ENGINE"); v != "" {
		cfg.Engine = v
	}
	return nil
}

func (c Config) validate() error {
	switch {
	case c.HTTPPort == 0 || c.HTTPPort > 65535:
		return fmt.Errorf("http port %d out of range", c.HTTPPort)
	case c.Engine != EngineONNX && c.Engine != EngineMock:
		return fmt.Errorf("unknown engine %q", c.Engine)
	case c.MockDigit < 0 || c.MockDigit > 9:
		return fmt.Errorf("mock digit %d is not in 0-9", c.MockDigit)
	case c.MaxUploadMB <= 0 || c.MaxUploadMB > maxUploadMB:
		return fmt.Errorf("max upload size must be between 1 and %d MB", maxUploadMB)
	}
	return nil
}

func (c Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

func (c Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
