package config

import "time"

// Config mirrors the --config file. Zero values mean "not set" and leave
// the corresponding flag in effect.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Record  RecordConfig  `mapstructure:"record"`
	Capture CaptureConfig `mapstructure:"capture"`
	Export  ExportConfig  `mapstructure:"export"`
}

type LogConfig struct {
	Path       string `mapstructure:"path"`
	Capacity   uint32 `mapstructure:"capacity"`
	SyncWrites *bool  `mapstructure:"syncWrites"`
}

type RecordConfig struct {
	Server           string        `mapstructure:"server"`
	IdleTimeout      time.Duration `mapstructure:"idleTimeout"`
	FreshnessWindow  time.Duration `mapstructure:"freshnessWindow"`
	MaxPayloadLength int           `mapstructure:"maxPayloadLength"`
	StatusInterval   time.Duration `mapstructure:"statusInterval"`
	ShutdownGrace    time.Duration `mapstructure:"shutdownGrace"`
	SaveJpegSample   string        `mapstructure:"saveJpegSample"`
}

type CaptureConfig struct {
	Dir     string  `mapstructure:"dir"`
	Pattern string  `mapstructure:"pattern"`
	FPS     float64 `mapstructure:"fps"`
}

type ExportConfig struct {
	Compression string `mapstructure:"compression"`
}

// Keys lists every key so that FUSOR_* environment variables are seen even
// without a config file.
var Keys = []string{
	"log.path", "log.capacity", "log.syncWrites",
	"record.server", "record.idleTimeout", "record.freshnessWindow",
	"record.maxPayloadLength", "record.statusInterval", "record.shutdownGrace",
	"record.saveJpegSample",
	"capture.dir", "capture.pattern", "capture.fps",
	"export.compression",
}
