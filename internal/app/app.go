// Package app wires the mudra gesture validation system together: storage,
// the classifier, the session runner, the live tracker, feedback plugins
// and the HTTP control surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"

	"github.com/ayusman/mudra/internal/bridge"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/inference"
	"github.com/ayusman/mudra/internal/plugin"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

// Options carries collaborators that replace the configured defaults.
type Options struct {
	// Version is reported to telemetry.
	Version string

	// StaticDir is served at / when set.
	StaticDir string

	// Frames replaces the camera tracker as the frame input.
	Frames <-chan detector.Frame

	// Detector and Camera replace the MediaPipe tracker and the capture
	// device. They are ignored when Frames is set.
	Detector detector.Detector
	Camera   capture.Camera

	// Listener replaces listening on the configured server address.
	Listener net.Listener
}

// App is the assembled application.
type App struct {
	cfg  *config.Config
	opts Options

	store   *store.Store
	labels  *gesture.LabelMap
	engine  *inference.TemplateEngine
	trainer *TemplateTrainer
	client  *bridge.Client

	session  *session.Session
	runner   *Runner
	hub      *server.Hub
	plugins  *plugin.Manager
	notifier *plugin.Notifier

	source   *capture.Source
	detector detector.Detector
	server   *server.Server

	shutdownTelemetry func(context.Context) error
}

// New opens the store, resolves labels, sets up the classifier and builds
// the session with its observers. The bridge classifier is dialed here and
// a failure to reach it is returned.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{cfg: cfg, opts: opts}

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		ServiceName: cfg.Telemetry.ServiceName,
		Version:     opts.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("setup telemetry: %w", err)
	}
	a.shutdownTelemetry = shutdown

	a.store, err = store.New(cfg.StorePath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	a.labels, err = ResolveLabels(a.store, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	settings := cfg.SessionSettings()
	settings.Labels = a.labels

	switch cfg.Inference.Backend {
	case config.BackendBridge:
		a.client, err = bridge.Dial(ctx, cfg.Inference.BridgeAddr, cfg.ClientSettings())
		if err != nil {
			a.Close()
			return nil, err
		}
		settings.Remote = a.client
		log.Printf("using remote classifier at %s", cfg.Inference.BridgeAddr)

	default:
		a.engine = inference.NewTemplateEngine(a.labels)
		a.engine.SetTemperature(cfg.Inference.Temperature)
		a.trainer = NewTemplateTrainer(a.store, a.engine, cfg.Features.FeatureDim)
		n, err := a.trainer.LoadTemplates()
		if err != nil {
			a.Close()
			return nil, err
		}
		settings.Engine = a.engine
		log.Printf("loaded %d gesture templates", n)
	}

	a.session = session.New(settings)
	a.session.Subscribe(store.NewResultRecorder(a.store))
	a.session.Subscribe(sessionLogger{})

	a.plugins = plugin.NewManager(cfg.Plugins.Dir)
	if err := a.plugins.Discover(); err != nil {
		log.Printf("plugin discovery failed: %v", err)
	}
	a.notifier = plugin.NewNotifier(a.plugins, plugin.NewExecutor(cfg.Plugins.Timeout), cfg.Plugins.QueueSize)
	a.session.Subscribe(a.notifier)

	frames := opts.Frames
	if frames == nil && cfg.Camera.Enabled {
		a.source = a.newSource()
		frames = a.source.Frames()
	}

	a.runner = NewRunner(a.session, frames, cfg.Session.TickInterval)
	a.hub = server.NewHub(a.runner.Snapshot)
	a.session.Subscribe(a.hub)
	a.runner.ObserveFrames(a.hub)

	srvCfg := server.Config{
		StaticDir:  opts.StaticDir,
		Store:      a.store,
		Labels:     a.labels,
		Controller: a.runner,
		Hub:        a.hub,
	}
	if a.trainer != nil {
		srvCfg.Trainer = a.trainer
	}
	a.server = server.New(srvCfg)

	return a, nil
}

func (a *App) newSource() *capture.Source {
	det := a.opts.Detector
	if det == nil {
		// Try MediaPipe first, fall back to mock detector
		if mp, err := detector.NewMediaPipeDetector(a.cfg.DetectorSettings()); err == nil {
			det = mp
			log.Println("Using MediaPipe hand detection")
		} else {
			log.Printf("MediaPipe not available (%v), using mock detector", err)
			det = detector.NewMockDetector()
		}
	}
	a.detector = det

	camera := a.opts.Camera
	if camera == nil {
		camera = capture.NewCamera(capture.CameraConfig{
			DeviceID: a.cfg.Camera.Device,
			Width:    a.cfg.Camera.Width,
			Height:   a.cfg.Camera.Height,
			FPS:      a.cfg.Camera.IdleFPS,
		})
	}

	var motion *capture.MotionDetector
	if !a.cfg.Camera.AlwaysActive {
		motion = capture.NewMotionDetector(a.cfg.Camera.MotionThreshold)
	}
	return capture.NewSource(camera, motion, det, a.cfg.SourceSettings())
}

// Run serves until ctx is cancelled or a component fails. The camera
// tracker failing is logged and does not stop the rest of the app.
func (a *App) Run(ctx context.Context) error {
	l := a.opts.Listener
	if l == nil {
		var err error
		l, err = net.Listen("tcp", a.cfg.ServerAddr)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", a.cfg.ServerAddr, err)
		}
	}
	log.Printf("serving on http://%s", l.Addr())

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ignoreCanceled(a.runner.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(a.notifier.Run(gctx)) })
	g.Go(func() error {
		defer a.hub.Close()
		return a.server.Serve(gctx, l)
	})
	if a.source != nil {
		g.Go(func() error {
			if err := a.source.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("camera tracker stopped: %v", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// Close releases everything New acquired. It is safe to call after a
// failed New.
func (a *App) Close() error {
	var errs []error

	if a.client != nil {
		errs = append(errs, a.client.Close())
	}
	if a.detector != nil {
		errs = append(errs, a.detector.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.shutdownTelemetry != nil {
		errs = append(errs, a.shutdownTelemetry(context.Background()))
	}

	return errors.Join(errs...)
}

// Subscribe adds an observer of session events. It must be called before
// Run.
func (a *App) Subscribe(o session.Observer) {
	a.session.Subscribe(o)
}

// Runner returns the session runner.
func (a *App) Runner() *Runner { return a.runner }

// Store returns the application store.
func (a *App) Store() *store.Store { return a.store }

// Labels returns the resolved label map.
func (a *App) Labels() *gesture.LabelMap { return a.labels }

// Trainer returns the template trainer, or nil with the bridge backend.
func (a *App) Trainer() *TemplateTrainer { return a.trainer }

// Plugins returns the plugin manager.
func (a *App) Plugins() *plugin.Manager { return a.plugins }

// ResolveLabels picks the label map: the configured label map file (which
// is then persisted), else the labels in the store, else the session
// gestures in order. With the template backend every session gesture must
// be a class, so missing gestures are appended and persisted.
func ResolveLabels(s *store.Store, cfg *config.Config) (*gesture.LabelMap, error) {
	var (
		labels  *gesture.LabelMap
		persist bool
	)

	if cfg.Inference.LabelMap != "" {
		m, err := gesture.LoadLabelMap(cfg.Inference.LabelMap)
		if err != nil {
			log.Printf("label map %s: %v", cfg.Inference.LabelMap, err)
		}
		if m.Len() > 0 {
			labels, persist = m, true
		}
	}

	if labels == nil {
		m, err := s.Labels().LabelMap()
		if err != nil {
			return nil, fmt.Errorf("load labels: %w", err)
		}
		if m.Len() > 0 {
			labels = m
		}
	}

	if labels == nil {
		labels, persist = gesture.NewLabelMap(nil), true
	}

	if cfg.Inference.Backend != config.BackendBridge {
		if merged, changed := withGestures(labels, cfg.Session.Gestures); changed {
			labels, persist = merged, true
		}
	}

	if persist && labels.Len() > 0 {
		if err := s.Labels().Replace(labels); err != nil {
			return nil, fmt.Errorf("save labels: %w", err)
		}
	}
	return labels, nil
}

// withGestures appends gestures m does not know yet. Blank gestures are
// ignored.
func withGestures(m *gesture.LabelMap, gestures []string) (*gesture.LabelMap, bool) {
	labels := m.Labels()
	changed := false
	for _, g := range gestures {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		if _, ok := m.Index(g); ok {
			continue
		}
		if containsFold(labels[m.Len():], g) {
			continue
		}
		labels = append(labels, g)
		changed = true
	}
	if !changed {
		return m, false
	}
	return gesture.NewLabelMap(labels), true
}

func containsFold(list []string, s string) bool {
	for _, l := range list {
		if strings.EqualFold(l, s) {
			return true
		}
	}
	return false
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// sessionLogger logs the session events worth a line in the console.
type sessionLogger struct{}

func (sessionLogger) OnEvent(e session.Event) {
	switch e.Type {
	case session.EventSessionStarted:
		log.Printf("session %s started", e.SessionID)
	case session.EventGestureResult:
		if e.Success {
			log.Printf("gesture %d %q passed (p=%.2f c=%.2f)", e.Index, e.Label, e.Probability, e.Confidence)
		} else {
			log.Printf("gesture %d %q failed: %s", e.Index, e.Label, e.Reason)
		}
	case session.EventAllCompleted:
		log.Printf("session %s completed", e.SessionID)
	case session.EventSessionStopped:
		log.Printf("session %s stopped: %s", e.SessionID, e.Reason)
	}
}
