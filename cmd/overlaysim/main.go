package main

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/tilelabel/overlay/internal/config"
	"github.com/tilelabel/overlay/internal/engine"
	"github.com/tilelabel/overlay/internal/geometry"
	"github.com/tilelabel/overlay/internal/host"
	"github.com/tilelabel/overlay/internal/host/sim"
	"github.com/tilelabel/overlay/internal/intercept"
	"github.com/tilelabel/overlay/internal/label"
	"github.com/tilelabel/overlay/internal/labelstore"
	"github.com/tilelabel/overlay/internal/logging"
	"github.com/tilelabel/overlay/internal/messaging"
	"github.com/tilelabel/overlay/internal/messaging/wsbridge"
	intOtel "github.com/tilelabel/overlay/internal/otel"
	"github.com/tilelabel/overlay/internal/telemetry"
)

var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "overlaysim"
)

var (
	LogFilePath string
	LogFile     *os.File

	SlogManager *logging.SlogManager
	Logger      *slog.Logger

	OTelProvider *intOtel.Provider

	Telemetry *telemetry.Manager

	SessionStartTime time.Time = time.Now()
)

func init() {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load("."); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config")
	}

	logsDir := viper.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		os.Mkdir(logsDir, 0755)
	}

	LogFilePath = logging.LogFilePath(logsDir, AppName, SessionStartTime)

	var err error
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			ServiceVersion: CurrentVersion,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      LogFile,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "file", LogFilePath, "endpoint", otelCfg.Endpoint)
		}
	}

	if viper.GetBool("graylog.enabled") {
		gw, err := logging.NewGraylogWriter(viper.GetString("graylog.address"))
		if err != nil {
			Logger.Error("Failed to connect graylog writer", "error", err)
		} else {
			SlogManager.AddSink(gw)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(LogFile, viper.GetString("logLevel"), otelLogProvider)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", LogFilePath, "version", CurrentVersion, "build", BuildDate)
}

func main() {
	Logger.Info("Starting up...")

	zlog := zerolog.New(os.Stderr).With().Timestamp().Logger()

	args := os.Args[1:]
	if len(args) > 0 && strings.ToLower(args[0]) == "seedlabels" {
		if err := seedLabels(zlog); err != nil {
			panic(err)
		}
		Logger.Info("Label database seeded.")
		return
	}

	Telemetry = telemetry.NewManager(zlog, filepath.Join(viper.GetString("logsDir"), "overlaysim_stats.lp.gz"))
	if err := Telemetry.Connect(); err != nil {
		Logger.Warn("Telemetry unavailable, reports go to the backup file", "error", err)
	}
	defer Telemetry.Close()

	labels := labelstore.LoadLabels(config.GetLabelsConfig(), zlog)
	if single := config.GetDebugConfig().SingleLabel; single != "" {
		labels = filterSingle(labels, single)
		Logger.Info("Restricting to a single label", "text", single)
	}
	Logger.Info("Labels loaded", "count", labels.Len())

	mode := viper.GetString("overlay.mode")
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "raster", "accelerated":
			mode = strings.ToLower(args[0])
		}
	}

	r := newReplay(labels)
	defer r.close()

	switch mode {
	case "accelerated":
		r.runAccelerated()
	default:
		r.runRaster()
	}

	if err := SlogManager.Flush(context.Background()); err != nil {
		Logger.Error("Log flush failed", "error", err)
	}
	if OTelProvider != nil {
		OTelProvider.Shutdown(context.Background())
	}
	Logger.Info("Replay complete.")
}

// seedLabels writes the built-in label list into the configured sqlite
// database so later runs can load from it.
func seedLabels(zlog zerolog.Logger) error {
	lc := config.GetLabelsConfig()
	lc.Source = "sqlite"
	store, err := labelstore.Open(lc, zlog)
	if err != nil {
		return fmt.Errorf("opening label store: %w", err)
	}
	defer store.Close()
	return store.Save(labelstore.Fallback().All())
}

func filterSingle(s *label.Set, text string) *label.Set {
	for _, l := range s.All() {
		if l.Text == text {
			return label.NewSet([]*label.Label{l})
		}
	}
	return s
}

// replay drives the engine through the in-memory host with a scripted
// pan/zoom session.
type replay struct {
	doc    *sim.Document
	sched  *sim.Scheduler
	eng    *engine.Engine
	ep     *messaging.Endpoint
	bridge *wsbridge.Bridge

	frame    func(fn func())
	draw     intercept.DrawImageFunc
	clip     intercept.ClipRectFunc
	navigate intercept.NavigateFunc

	frames int
}

const replayOrigin = "https://maps.example"

func newReplay(labels *label.Set) *replay {
	r := &replay{
		doc:   sim.NewDocument(replayOrigin),
		sched: sim.NewScheduler(),
	}
	r.doc.SetURL(replayOrigin + "/@37.7749,-122.4194,12z")

	bc := config.GetBridgeConfig()
	if bc.Enabled {
		r.ep = messaging.NewEndpoint(replayOrigin, logging.Channel(Logger, "messaging"))
		r.bridge = wsbridge.New(
			wsbridge.Config{URL: bc.URL, Secret: bc.Secret},
			func(env messaging.Envelope) { r.ep.Deliver(env) },
			logging.Channel(Logger, "bridge"),
		)
		if err := r.bridge.Dial(); err != nil {
			Logger.Warn("Bridge dial failed, continuing without it", "error", err)
			r.bridge = nil
			r.ep = nil
		} else {
			r.ep.Bind(r.bridge)
		}
	}

	eng, err := engine.New(engine.Dependencies{
		Doc:       r.doc,
		Sched:     r.sched,
		Labels:    labels,
		Endpoint:  r.ep,
		Telemetry: Telemetry,
		Log:       Logger,
	})
	if err != nil {
		panic(err)
	}
	r.eng = eng
	SlogManager.GetFrameID = eng.Hub().FrameID
	SlogManager.GetSurfaceTag = eng.SurfaceTag

	gridHighlight := config.GetDebugConfig().GridHighlight
	hub := eng.Hub()
	r.frame = hub.WrapRequestFrame(func(fn func()) { fn() })
	r.draw = hub.WrapDrawImage(func(dst host.Surface, src host.ImageData, sr image.Rectangle, dr geometry.Rect, _ geometry.Matrix) error {
		d, ok := src.(*sim.ImageData)
		if !ok {
			return nil
		}
		if err := dst.DrawRGBA(d.Img, sr, dr); err != nil {
			return err
		}
		if gridHighlight {
			outlineTile(dst, dr)
		}
		return nil
	})
	r.clip = hub.WrapClipRect(func(host.Surface, geometry.Rect) {})
	r.navigate = hub.WrapNavigate(func(url string, replace bool) { r.doc.SetURL(url) })
	return r
}

func (r *replay) close() {
	r.eng.Cleanup()
	if r.bridge != nil {
		r.bridge.Close()
	}
}

// tick runs one scheduled frame, drains deferred compositing ticks and the
// messaging inbox, then moves simulated time forward one frame interval.
func (r *replay) tick(fn func()) {
	r.frame(fn)
	r.sched.RunTicks()
	if r.ep != nil {
		r.ep.Dispatch()
	}
	r.sched.Advance(16 * time.Millisecond)
	r.frames++
}

// outlineTile marks an intercepted tile draw with a one-pixel red border.
func outlineTile(dst host.Surface, dr geometry.Rect) {
	if dr.W < 2 || dr.H < 2 {
		return
	}
	edge := image.NewRGBA(image.Rect(0, 0, int(dr.W), 1))
	for i := 0; i < len(edge.Pix); i += 4 {
		edge.Pix[i], edge.Pix[i+3] = 0xff, 0xff
	}
	dst.DrawRGBA(edge, edge.Bounds(), geometry.Rect{X: dr.X, Y: dr.Y, W: dr.W, H: 1})
	dst.DrawRGBA(edge, edge.Bounds(), geometry.Rect{X: dr.X, Y: dr.Y + dr.H - 1, W: dr.W, H: 1})
	side := image.NewRGBA(image.Rect(0, 0, 1, int(dr.H)))
	for i := 0; i < len(side.Pix); i += 4 {
		side.Pix[i], side.Pix[i+3] = 0xff, 0xff
	}
	dst.DrawRGBA(side, side.Bounds(), geometry.Rect{X: dr.X, Y: dr.Y, W: 1, H: dr.H})
	dst.DrawRGBA(side, side.Bounds(), geometry.Rect{X: dr.X + dr.W - 1, Y: dr.Y, W: 1, H: dr.H})
}

// tileContent is deterministic per tile slot and script step, so panning
// produces genuinely different pixel content from frame to frame.
func tileContent(tx, ty, step int) *sim.ImageData {
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	fill := uint8(31*tx + 17*ty + 7*step)
	for i := range img.Pix {
		img.Pix[i] = fill
	}
	return &sim.ImageData{Img: img}
}

func (r *replay) runRaster() {
	Logger.Info("Running raster replay")
	surface := sim.NewSurface(host.ContextRaster, 1024, 1024)
	r.doc.AddSurface(surface)
	r.eng.Start()
	if !r.eng.IsValid() {
		Logger.Error("Engine failed to initialize against the raster surface")
		return
	}

	script := []string{
		replayOrigin + "/@37.7749,-122.4194,12z",
		replayOrigin + "/@37.7799,-122.4144,12z",
		replayOrigin + "/@37.7849,-122.4094,13z",
		replayOrigin + "/@51.5074,-0.1278,11z",
	}

	for step, url := range script {
		if step > 0 {
			r.navigate(url, false)
		}
		for f := 0; f < 3; f++ {
			r.tick(func() {
				for ty := 0; ty < 4; ty++ {
					for tx := 0; tx < 4; tx++ {
						r.draw(surface, tileContent(tx, ty, step),
							image.Rect(0, 0, 256, 256),
							geometry.Rect{X: float64(tx) * 256, Y: float64(ty) * 256, W: 256, H: 256},
							geometry.Identity())
					}
				}
			})
		}
	}

	// A zoom gesture: paints stay suppressed until the quiet period ends.
	r.eng.Hub().NotifyInput(intercept.InputWheel)
	r.navigate(replayOrigin+"/@51.5074,-0.1278,12z", true)
	r.sched.Advance(time.Second)
	r.tick(func() {
		for ty := 0; ty < 4; ty++ {
			for tx := 0; tx < 4; tx++ {
				r.draw(surface, tileContent(tx, ty, len(script)),
					image.Rect(0, 0, 256, 256),
					geometry.Rect{X: float64(tx) * 256, Y: float64(ty) * 256, W: 256, H: 256},
					geometry.Identity())
			}
		}
	})

	st := r.eng.Tracker().State()
	Logger.Info("Raster replay finished",
		"frames", r.frames, "lat", st.Center.Lat, "lng", st.Center.Lng, "zoom", st.Zoom)
}

func (r *replay) runAccelerated() {
	Logger.Info("Running accelerated replay")
	surface := sim.NewSurface(host.ContextAccelerated, 300, 150)
	r.doc.AddSurface(surface)
	r.eng.Start()
	if !r.eng.IsValid() {
		Logger.Error("Engine failed to initialize against the accelerated surface")
		return
	}

	// A slow pan: each frame's tile grid slides two pixels right, one down.
	for f := 0; f < 30; f++ {
		offX, offY := float64(f*2), float64(f)
		r.tick(func() {
			for ty := 0; ty < 2; ty++ {
				for tx := 0; tx < 2; tx++ {
					r.clip(surface, geometry.Rect{
						X: float64(tx)*256 - offX,
						Y: float64(ty)*256 - offY,
						W: 256, H: 256,
					})
				}
			}
		})
	}
	r.tick(func() {})

	// Zoom gesture mid-session, resolved by a URL update.
	r.eng.Hub().NotifyInput(intercept.InputZoomButton)
	r.navigate(replayOrigin+"/@37.7749,-122.4194,13z", true)
	r.sched.Advance(time.Second)
	r.tick(func() {})

	x, y := r.eng.Tracker().State().MovementX, r.eng.Tracker().State().MovementY
	Logger.Info("Accelerated replay finished", "frames", r.frames, "movementX", x, "movementY", y)
}
