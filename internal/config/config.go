package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration, read from a YAML file.
type Config struct {
	LogFile      string          `yaml:"log_file"`
	TelegrafAddr string          `yaml:"telegraf_addr"`
	Serial       SerialConfig    `yaml:"serial"`
	Spool        SpoolConfig     `yaml:"spool"`
	Processor    ProcessorConfig `yaml:"processor"`
	Sampler      SamplerConfig   `yaml:"sampler"`
}

type SerialConfig struct {
	Port               string `yaml:"port"`
	Baudrate           int    `yaml:"baudrate"`
	StopSequence       string `yaml:"stop_sequence"`
	MessageQueueLength int    `yaml:"message_queue_length"`
}

type SpoolConfig struct {
	Dir     string `yaml:"dir"` // empty means the OS temp dir
	MaxSize int64  `yaml:"max_size"`
	NChans  int    `yaml:"n_chans"`
}

type ProcessorConfig struct {
	RawLogFile string `yaml:"raw_log_file"` // empty disables the CSV mirror
	BatchScans int    `yaml:"batch_scans"`
}

type SamplerConfig struct {
	Interval   time.Duration `yaml:"interval"`
	Window     int64         `yaml:"window"` // newest scans averaged per sample
	Downsample int           `yaml:"downsample"`
	Channels   []int         `yaml:"channels"` // empty means all
}

func Default() Config {
	return Config{
		LogFile:      "rspool.logs",
		TelegrafAddr: "127.0.0.1:4020",
		Serial: SerialConfig{
			Baudrate:           460800,
			StopSequence:       "\r\n",
			MessageQueueLength: 20,
		},
		Spool: SpoolConfig{
			MaxSize: 1048576000,
			NChans:  8,
		},
		Processor: ProcessorConfig{
			BatchScans: 64,
		},
		Sampler: SamplerConfig{
			Interval:   100 * time.Millisecond,
			Window:     100,
			Downsample: 1,
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error

	if c.Serial.Port == "" {
		errs = append(errs, errors.New("serial.port is required"))
	}
	if c.Serial.Baudrate <= 0 {
		errs = append(errs, errors.New("serial.baudrate must be positive"))
	}
	if c.Serial.StopSequence == "" {
		errs = append(errs, errors.New("serial.stop_sequence is required"))
	}
	if c.Serial.MessageQueueLength < 0 {
		errs = append(errs, errors.New("serial.message_queue_length must not be negative"))
	}
	if c.Spool.NChans <= 0 {
		errs = append(errs, errors.New("spool.n_chans must be positive"))
	}
	if c.Spool.MaxSize <= 0 {
		errs = append(errs, errors.New("spool.max_size must be positive"))
	}
	if c.Processor.BatchScans <= 0 {
		errs = append(errs, errors.New("processor.batch_scans must be positive"))
	}
	if c.Sampler.Interval <= 0 {
		errs = append(errs, errors.New("sampler.interval must be positive"))
	}
	if c.Sampler.Window <= 0 {
		errs = append(errs, errors.New("sampler.window must be positive"))
	}
	if c.Sampler.Downsample <= 0 {
		errs = append(errs, errors.New("sampler.downsample must be positive"))
	}
	for _, ch := range c.Sampler.Channels {
		if ch < 0 || ch >= c.Spool.NChans {
			errs = append(errs, fmt.Errorf("sampler.channels: channel %d out of range [0, %d)", ch, c.Spool.NChans))
		}
	}

	return errors.Join(errs...)
}
