// Package modal implements the add-layer dialog: it fetches an OGC
// capability tree, renders it as a nested list and adds the chosen layer
// to the map.
package modal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joeblew999/plat-geo-ogc/internal/i18n"
	"github.com/joeblew999/plat-geo-ogc/internal/ogc"
	"github.com/joeblew999/plat-geo-ogc/internal/service"
	"github.com/joeblew999/plat-geo-ogc/internal/source"
)

var (
	ErrTornDown     = errors.New("dialog has been torn down")
	ErrNoTree       = errors.New("no capability tree loaded")
	ErrNotClickable = errors.New("node is not a layer")
	ErrClosed       = errors.New("dialog is closed")
)

// Config is the instantiation surface of the dialog.
type Config struct {
	URL            string // default service URL
	AsVector       bool   // WFS vector layers instead of tiled WMS
	AllowUserInput bool   // show an editable URL field
	SRSName        string // projection of the map view
	ClassName      string // extra CSS classes
}

// ServiceType is WFS in vector mode and WMS otherwise.
func (c Config) ServiceType() string {
	if c.AsVector {
		return "WFS"
	}
	return "WMS"
}

// CapabilityService fetches a capability tree.
type CapabilityService interface {
	GetCapabilities(ctx context.Context, url string) (*ogc.Layer, error)
}

// StyleService resolves the default style of a layer.
type StyleService interface {
	StyleName(ctx context.Context, url, layerName string) (string, error)
}

// FeatureTypeService describes the schema of a feature type.
type FeatureTypeService interface {
	DescribeFeatureType(ctx context.Context, url, typeName string) (*ogc.FeatureTypeInfo, error)
}

// MapHost is the map layers are added to.
type MapHost interface {
	AddLayer(l *service.Layer) error
	Layers() []*service.Layer
}

// Deps are the collaborators of a Controller.
type Deps struct {
	WMS          CapabilityService
	WFS          CapabilityService
	Styles       StyleService
	FeatureTypes FeatureTypeService
	Host         MapHost
	Localizer    i18n.Localizer
}

// Failure describes why a capability fetch failed.
type Failure struct {
	StatusCode int    // 0 when the server was never reached
	Status     string // reason phrase
	Detail     string // undecodable document or service exception
}

// Message returns the banner text for f.
func (f *Failure) Message(loc i18n.Localizer) string {
	var msg string
	switch {
	case f.StatusCode != 0:
		msg = fmt.Sprintf("%d %s", f.StatusCode, f.Status)
	case f.Detail != "":
		msg = f.Detail
	default:
		msg = loc.Format(i18n.MsgCORSError, nil)
	}
	return loc.Format(i18n.MsgError, i18n.Args{"msg": msg})
}

func classify(err error) *Failure {
	var httpErr *ogc.HTTPError
	var exc *ogc.ServiceException
	switch {
	case errors.As(err, &httpErr):
		return &Failure{StatusCode: httpErr.StatusCode, Status: httpErr.Status}
	case errors.As(err, &exc), errors.Is(err, ogc.ErrInvalidDocument):
		return &Failure{Detail: err.Error()}
	default:
		return &Failure{}
	}
}

// State is the dialog's UI state. Version increases on every change.
type State struct {
	Open      bool
	Error     bool
	ErrorOpen bool
	Failure   *Failure
	LayerInfo *ogc.Layer
	Loading   bool
	Input     string
	Version   uint64
}

// Controller owns the dialog state and its single outstanding
// capability request.
type Controller struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	base context.Context
	stop context.CancelFunc
	work errgroup.Group

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
	torn   bool
	subs   map[chan struct{}]struct{}

	renderOnce sync.Once
	component  Component
}

// New creates a closed dialog. A nil localizer uses English.
func New(cfg Config, deps Deps, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Localizer == nil {
		deps.Localizer = i18n.New()
	}
	if cfg.SRSName == "" {
		cfg.SRSName = source.SRSMercator
	}
	base, stop := context.WithCancel(context.Background())
	return &Controller{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "addlayer"),
		base:   base,
		stop:   stop,
		state:  State{Input: cfg.URL},
		subs:   make(map[chan struct{}]struct{}),
	}
}

// Config returns the dialog configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Localizer returns the controller's default localizer.
func (c *Controller) Localizer() i18n.Localizer {
	return c.deps.Localizer
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open shows the dialog and fetches capabilities from the configured URL.
// ctx supplies values only; the request lives until it completes, is
// superseded, or the controller is torn down.
func (c *Controller) Open(ctx context.Context) {
	c.fetch(ctx, c.cfg.URL)
	c.mutate(func(s *State) { s.Open = true })
}

// Close hides the dialog. An in-flight request keeps running.
func (c *Controller) Close() {
	c.mutate(func(s *State) { s.Open = false })
}

// Connect fetches capabilities from the URL field.
func (c *Controller) Connect(ctx context.Context) {
	c.fetch(ctx, c.URL())
}

// SetInput sets the URL field value.
func (c *Controller) SetInput(v string) {
	c.mutate(func(s *State) { s.Input = v })
}

// DismissError hides the error banner. The error itself is kept.
func (c *Controller) DismissError() {
	c.mutate(func(s *State) { s.ErrorOpen = false })
}

// URL returns the service URL in effect: the URL field when user input is
// allowed, the configured URL otherwise.
func (c *Controller) URL() string {
	raw := c.cfg.URL
	if c.cfg.AllowUserInput {
		raw = c.State().Input
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.String()
}

// Subscribe returns a channel that receives a value after state changes.
// Notifications coalesce. The channel is closed on teardown or when the
// returned function is called.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		_, ok := c.subs[ch]
		delete(c.subs, ch)
		c.mu.Unlock()
		if ok {
			close(ch)
		}
	}
}

// Teardown cancels the in-flight request and all auxiliary lookups and
// closes subscriber channels. Late responses are dropped.
func (c *Controller) Teardown() {
	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	c.torn = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	c.stop()
	for ch := range subs {
		close(ch)
	}
	c.logger.Info("dialog torn down")
}

// Wait blocks until the outstanding request and lookups have finished.
func (c *Controller) Wait() {
	_ = c.work.Wait()
}

func (c *Controller) capabilities() CapabilityService {
	if c.cfg.AsVector {
		return c.deps.WFS
	}
	return c.deps.WMS
}

// fetch starts a capability request, canceling the one in flight.
func (c *Controller) fetch(ctx context.Context, rawURL string) {
	svc := c.capabilities()
	log := c.logger.With("url", rawURL, "service", c.cfg.ServiceType())

	c.mu.Lock()
	if c.torn {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.gen++
	gen := c.gen
	c.cancel = cancel
	c.state.Loading = true
	c.state.Version++

	log.Info("capabilities request")
	// Go under mu: no work may start after Teardown.
	c.work.Go(func() error {
		defer cancel()
		start := time.Now()
		tree, err := svc.GetCapabilities(reqCtx, rawURL)
		if !c.finish(gen, tree, err) {
			log.Debug("capabilities response dropped", "superseded", true)
			return nil
		}
		if err != nil {
			log.Warn("capabilities request failed", "error", err, "duration", time.Since(start))
			return nil
		}
		log.Info("capabilities loaded", "duration", time.Since(start))
		return nil
	})
	c.mu.Unlock()
	c.notify()
}

// finish applies the result of request gen. It reports false when the
// request was superseded or the controller torn down.
func (c *Controller) finish(gen uint64, tree *ogc.Layer, err error) bool {
	c.mu.Lock()
	if c.torn || gen != c.gen {
		c.mu.Unlock()
		return false
	}
	c.cancel = nil
	s := &c.state
	s.Loading = false
	if err != nil {
		s.Error = true
		s.ErrorOpen = true
		s.Failure = classify(err)
		s.LayerInfo = nil
	} else {
		s.Error = false
		s.ErrorOpen = false
		s.Failure = nil
		s.LayerInfo = tree
	}
	s.Version++
	c.mu.Unlock()
	c.notify()
	return true
}

// track runs fn on the controller's lifetime context.
func (c *Controller) track(fn func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.torn {
		return
	}
	c.work.Go(func() error {
		fn(c.base)
		return nil
	})
}

func (c *Controller) mutate(fn func(*State)) {
	c.mu.Lock()
	fn(&c.state)
	c.state.Version++
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
