package options

import (
	"errors"
	"fmt"
	"time"

	"Fusor/cmd/fusor/app/config"
	"Fusor/pkg/capture"
	"Fusor/pkg/export"
	"Fusor/pkg/ingest"
	"Fusor/pkg/tlog"
	"Fusor/pkg/util/app"

	"github.com/spf13/pflag"
)

// ErrConfig wraps every option validation failure.
var ErrConfig = errors.New("invalid configuration")

func configErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// loadConfig reads the config file and FUSOR_* environment.
func loadConfig() (*config.Config, []error) {
	if err := app.BindEnv(config.Keys...); err != nil {
		return nil, []error{err}
	}
	c := &config.Config{}
	if err := app.UnmarshalConfig(c); err != nil {
		return nil, []error{fmt.Errorf("%w: %v", ErrConfig, err)}
	}
	return c, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}

// LogOptions selects the telemetry log file.
type LogOptions struct {
	Path       string
	Capacity   uint32
	SyncWrites bool
}

func (o *LogOptions) addFlags(fs *pflag.FlagSet, writer bool) {
	fs.StringVarP(&o.Path, "file", "f", o.Path, "Telemetry log `FILE`.")
	if writer {
		fs.Uint32Var(&o.Capacity, "capacity", o.Capacity, "Maximum number of records the new log can hold.")
		fs.BoolVar(&o.SyncWrites, "sync-writes", o.SyncWrites, "Fsync every record before it is published.")
	}
}

func (o *LogOptions) apply(c *config.LogConfig) {
	setString(&o.Path, c.Path)
	if c.Capacity != 0 {
		o.Capacity = c.Capacity
	}
	if c.SyncWrites != nil {
		o.SyncWrites = *c.SyncWrites
	}
}

func (o *LogOptions) validate(writer bool) []error {
	var errs []error
	if o.Path == "" {
		errs = append(errs, configErr("log file path is empty"))
	}
	if writer && (o.Capacity == 0 || o.Capacity > tlog.MaxCapacity) {
		errs = append(errs, configErr("capacity %d not in [1, %d]", o.Capacity, tlog.MaxCapacity))
	}
	return errs
}

// RecordOptions configure live ingestion.
type RecordOptions struct {
	Log              LogOptions
	Server           string
	IdleTimeout      time.Duration
	FreshnessWindow  time.Duration
	MaxPayloadLength int
	StatusInterval   time.Duration
	ShutdownGrace    time.Duration
	SaveJpegSample   string
	CaptureDir       string
	CapturePattern   string
	CaptureFPS       float64

	now func() time.Time
}

func NewRecordOptions() *RecordOptions {
	return &RecordOptions{
		Log:              LogOptions{Capacity: tlog.DefaultCapacity, SyncWrites: true},
		IdleTimeout:      ingest.DefaultIdleTimeout,
		FreshnessWindow:  ingest.DefaultFreshnessWindow,
		MaxPayloadLength: tlog.DefaultMaxPayloadLength,
		StatusInterval:   time.Second,
		ShutdownGrace:    capture.DefaultGrace,
		CapturePattern:   "*.jpg",
		CaptureFPS:       10,
		now:              time.Now,
	}
}

func (o *RecordOptions) AddFlags(fs *pflag.FlagSet) {
	o.Log.addFlags(fs, true)
	fs.StringVarP(&o.Server, "server", "s", o.Server, fmt.Sprintf("Acquisition server `HOST[:PORT]`, port defaults to %d.", ingest.DefaultPort))
	fs.DurationVar(&o.IdleTimeout, "idle-timeout", o.IdleTimeout, "Fail ingestion when the server is silent this long.")
	fs.DurationVar(&o.FreshnessWindow, "freshness-window", o.FreshnessWindow, "Maximum age of a capture frame merged into a record.")
	fs.IntVar(&o.MaxPayloadLength, "max-payload-length", o.MaxPayloadLength, "Largest payload accepted from the server, in bytes.")
	fs.DurationVar(&o.StatusInterval, "status-interval", o.StatusInterval, "How often the live record is printed.")
	fs.DurationVar(&o.ShutdownGrace, "shutdown-grace", o.ShutdownGrace, "How long to wait for the capture loop on exit.")
	fs.StringVar(&o.SaveJpegSample, "save-jpeg-sample", o.SaveJpegSample, "Write the first recorded image to `FILE`.")
	fs.StringVar(&o.CaptureDir, "capture-dir", o.CaptureDir, "Directory of frames replayed as the local camera. Without it, server images are dropped.")
	fs.StringVar(&o.CapturePattern, "capture-pattern", o.CapturePattern, "Glob selecting frames in --capture-dir.")
	fs.Float64Var(&o.CaptureFPS, "capture-fps", o.CaptureFPS, "Frames per second grabbed from --capture-dir.")
}

func (o *RecordOptions) ApplyFlags() []error {
	c, errs := loadConfig()
	if errs != nil {
		return errs
	}
	o.Log.apply(&c.Log)
	setString(&o.Server, c.Record.Server)
	setDuration(&o.IdleTimeout, c.Record.IdleTimeout)
	setDuration(&o.FreshnessWindow, c.Record.FreshnessWindow)
	if c.Record.MaxPayloadLength != 0 {
		o.MaxPayloadLength = c.Record.MaxPayloadLength
	}
	setDuration(&o.StatusInterval, c.Record.StatusInterval)
	setDuration(&o.ShutdownGrace, c.Record.ShutdownGrace)
	setString(&o.SaveJpegSample, c.Record.SaveJpegSample)
	setString(&o.CaptureDir, c.Capture.Dir)
	setString(&o.CapturePattern, c.Capture.Pattern)
	if c.Capture.FPS != 0 {
		o.CaptureFPS = c.Capture.FPS
	}

	if o.Log.Path == "" {
		o.Log.Path = RecordFileName(o.now())
	}
	return nil
}

func (o *RecordOptions) Validate() []error {
	errs := o.Log.validate(true)
	if o.Server == "" {
		errs = append(errs, configErr("record needs --server"))
	}
	if o.MaxPayloadLength < tlog.PayloadFixedSize {
		errs = append(errs, configErr("max payload length %d below fixed payload size %d", o.MaxPayloadLength, tlog.PayloadFixedSize))
	}
	if o.IdleTimeout <= 0 {
		errs = append(errs, configErr("idle timeout must be positive"))
	}
	if o.FreshnessWindow <= 0 {
		errs = append(errs, configErr("freshness window must be positive"))
	}
	if o.StatusInterval <= 0 {
		errs = append(errs, configErr("status interval must be positive"))
	}
	return errs
}

// RecordFileName is the default log name for a recording started at t.
func RecordFileName(t time.Time) string {
	return t.Format("fusor_010206_150405.dat")
}

// GenerateOptions configure a synthetic log.
type GenerateOptions struct {
	Log          LogOptions
	Count        int
	StartTime    int64
	JpegSample   string
	Seed         uint32
	NoValueEvery int
}

func NewGenerateOptions() *GenerateOptions {
	return &GenerateOptions{
		Log:   LogOptions{Capacity: tlog.DefaultCapacity},
		Count: 3600,
	}
}

func (o *GenerateOptions) AddFlags(fs *pflag.FlagSet) {
	o.Log.addFlags(fs, true)
	fs.IntVarP(&o.Count, "count", "n", o.Count, "Number of one second records to generate.")
	fs.Int64Var(&o.StartTime, "start-time", o.StartTime, "Unix time of the first record, now when zero.")
	fs.StringVar(&o.JpegSample, "jpeg-sample", o.JpegSample, "Embed the image in `FILE` in every record.")
	fs.Uint32Var(&o.Seed, "seed", o.Seed, "Add deterministic noise with this seed, none when zero.")
	fs.IntVar(&o.NoValueEvery, "novalue-every", o.NoValueEvery, "Mark he3 channels as missing on every n-th record.")
}

func (o *GenerateOptions) ApplyFlags() []error {
	c, errs := loadConfig()
	if errs != nil {
		return errs
	}
	o.Log.apply(&c.Log)
	if o.Log.Path == "" {
		o.Log.Path = GenerateFileName(o.Count)
	}
	return nil
}

func (o *GenerateOptions) Validate() []error {
	errs := o.Log.validate(true)
	if o.Count < 1 || uint32(o.Count) > o.Log.Capacity {
		errs = append(errs, configErr("count %d not in [1, %d]", o.Count, o.Log.Capacity))
	}
	if o.NoValueEvery < 0 {
		errs = append(errs, configErr("novalue-every must not be negative"))
	}
	return errs
}

// GenerateFileName is the default name of a synthetic log of n records.
func GenerateFileName(n int) string {
	return fmt.Sprintf("fusor_test_%d_secs.dat", n)
}

// PlayOptions configure browsing an existing log.
type PlayOptions struct {
	Log         LogOptions
	Start       int
	Ops         []string
	Interactive bool
	Span        int
	Series      []string
	NoVerify    bool
}

func NewPlayOptions() *PlayOptions {
	return &PlayOptions{
		Interactive: true,
		Span:        60,
		Series:      []string{"voltage", "current", "pressure", "he3"},
	}
}

func (o *PlayOptions) AddFlags(fs *pflag.FlagSet) {
	o.Log.addFlags(fs, false)
	fs.IntVar(&o.Start, "start", o.Start, "Index of the first record shown, -1 for the newest.")
	fs.StringSliceVar(&o.Ops, "ops", o.Ops, "Navigation steps applied in order, e.g. end,back10,graph.")
	fs.BoolVarP(&o.Interactive, "interactive", "i", o.Interactive, "Read further steps from stdin.")
	fs.IntVar(&o.Span, "span", o.Span, "Graph window width in seconds.")
	fs.StringSliceVar(&o.Series, "series", o.Series, "Series included in graph output.")
	fs.BoolVar(&o.NoVerify, "no-verify", o.NoVerify, "Skip the sanity scan before browsing.")
}

func (o *PlayOptions) ApplyFlags() []error {
	c, errs := loadConfig()
	if errs != nil {
		return errs
	}
	setString(&o.Log.Path, c.Log.Path)
	return nil
}

func (o *PlayOptions) Validate() []error {
	errs := o.Log.validate(false)
	if o.Start < -1 {
		errs = append(errs, configErr("start index %d must be -1 or more", o.Start))
	}
	if o.Span <= 0 {
		errs = append(errs, configErr("span must be positive"))
	}
	return errs
}

// InspectOptions configure a table dump of a log.
type InspectOptions struct {
	Log          LogOptions
	First        uint32
	Count        uint32
	CheckPayload bool
	Summary      bool
}

func NewInspectOptions() *InspectOptions {
	return &InspectOptions{Count: 20, CheckPayload: true}
}

func (o *InspectOptions) AddFlags(fs *pflag.FlagSet) {
	o.Log.addFlags(fs, false)
	fs.Uint32Var(&o.First, "first", o.First, "First record listed.")
	fs.Uint32Var(&o.Count, "count", o.Count, "Number of records listed, 0 for none.")
	fs.BoolVar(&o.CheckPayload, "check-payload", o.CheckPayload, "Verify payload checksums in the sanity scan.")
	fs.BoolVar(&o.Summary, "summary", o.Summary, "Print min, max and mean of every series.")
}

func (o *InspectOptions) ApplyFlags() []error {
	c, errs := loadConfig()
	if errs != nil {
		return errs
	}
	setString(&o.Log.Path, c.Log.Path)
	return nil
}

func (o *InspectOptions) Validate() []error {
	return o.Log.validate(false)
}

// ExportOptions configure a compressed export.
type ExportOptions struct {
	Log         LogOptions
	Out         string
	First       uint32
	Count       uint32
	Compression string
}

func NewExportOptions() *ExportOptions {
	return &ExportOptions{Compression: export.Zstd.String()}
}

func (o *ExportOptions) AddFlags(fs *pflag.FlagSet) {
	o.Log.addFlags(fs, false)
	fs.StringVarP(&o.Out, "out", "o", o.Out, "Export `FILE`, must not exist.")
	fs.Uint32Var(&o.First, "first", o.First, "First record exported.")
	fs.Uint32Var(&o.Count, "count", o.Count, "Number of records exported, 0 for all.")
	fs.StringVar(&o.Compression, "compress", o.Compression, "Compression: none, lz4 or zstd.")
}

func (o *ExportOptions) ApplyFlags() []error {
	c, errs := loadConfig()
	if errs != nil {
		return errs
	}
	setString(&o.Log.Path, c.Log.Path)
	setString(&o.Compression, c.Export.Compression)
	return nil
}

func (o *ExportOptions) Validate() []error {
	errs := o.Log.validate(false)
	if o.Out == "" {
		errs = append(errs, configErr("export needs --out"))
	}
	if _, err := export.ParseCompression(o.Compression); err != nil {
		errs = append(errs, configErr("%v", err))
	}
	return errs
}
