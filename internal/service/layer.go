package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	ErrNotFound     = errors.New("layer not found")
	ErrNotRemovable = errors.New("layer is not removable")
)

// MapService holds the map's ordered top-level layer collection.
type MapService struct {
	dataDir string
	bus     *EventBus
	logger  *slog.Logger
	layers  []*Layer
	mu      sync.RWMutex
	saveMu  sync.Mutex
}

// NewMapService creates a map service persisted under dataDir. An empty
// dataDir keeps the map in memory only.
func NewMapService(dataDir string, bus *EventBus, logger *slog.Logger) *MapService {
	if bus == nil {
		bus = DefaultBus
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &MapService{
		dataDir: dataDir,
		bus:     bus,
		logger:  logger,
	}
	s.loadFromDisk()
	return s
}

// Bus returns the bus map changes are published on.
func (s *MapService) Bus() *EventBus {
	return s.bus
}

// Layers returns the top-level layers in map order.
func (s *MapService) Layers() []*Layer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Layer, len(s.layers))
	copy(out, s.layers)
	return out
}

// Snapshot returns the state of all layers in map order.
func (s *MapService) Snapshot() []LayerState {
	layers := s.Layers()
	out := make([]LayerState, 0, len(layers))
	for _, l := range layers {
		out = append(out, l.Snapshot())
	}
	return out
}

// Get returns the first layer with id, searching groups depth first.
func (s *MapService) Get(id string) (*Layer, bool) {
	for _, l := range s.Layers() {
		if found, ok := l.find(id); ok {
			return found, true
		}
	}
	return nil, false
}

// AddLayer appends l to the top level. Layers with an existing ID are
// added again rather than rejected.
func (s *MapService) AddLayer(l *Layer) error {
	s.mu.Lock()
	s.layers = append(s.layers, l)
	s.mu.Unlock()

	l.attach(s.layerChanged)
	s.bus.Publish(Event{Resource: ResourceLayers, Action: ActionCreated, ID: l.ID()})
	return s.saveToDisk()
}

// EnsureGroup returns the top-level group with id, creating it if needed.
func (s *MapService) EnsureGroup(cfg GroupConfig) (*Layer, error) {
	for _, l := range s.Layers() {
		if l.ID() == cfg.ID && l.Kind() == KindGroup {
			return l, nil
		}
	}
	title := cfg.Title
	if title == "" {
		title = cfg.ID
	}
	g := NewGroup(cfg.ID, title, cfg.Type)
	if err := s.AddLayer(g); err != nil {
		return nil, err
	}
	return g, nil
}

// Remove deletes the first layer with id, at any depth.
func (s *MapService) Remove(id string) error {
	target, ok := s.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if !target.Removable() {
		return fmt.Errorf("%w: %q", ErrNotRemovable, id)
	}

	removed := false
	s.mu.Lock()
	for i, l := range s.layers {
		if l == target {
			s.layers = append(s.layers[:i:i], s.layers[i+1:]...)
			removed = true
			break
		}
	}
	top := make([]*Layer, len(s.layers))
	copy(top, s.layers)
	s.mu.Unlock()

	if !removed {
		for _, l := range top {
			if _, ok := l.removeChild(id); ok {
				removed = true
				break
			}
		}
	}
	if !removed {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}

	target.attach(nil)
	s.bus.Publish(Event{Resource: ResourceLayers, Action: ActionDeleted, ID: id})
	return s.saveToDisk()
}

// layerChanged persists and announces a mutation of an attached layer.
func (s *MapService) layerChanged(l *Layer) {
	s.bus.Publish(Event{Resource: ResourceLayers, Action: ActionUpdated, ID: l.ID()})
	if err := s.saveToDisk(); err != nil {
		s.logger.Error("persist map layers", "layer", l.ID(), "error", err)
	}
}

// configFile returns the path to the layers file.
func (s *MapService) configFile() string {
	return filepath.Join(s.dataDir, "layers.json")
}

// loadFromDisk restores the layer collection saved by a previous run.
func (s *MapService) loadFromDisk() {
	if s.dataDir == "" {
		return
	}
	data, err := os.ReadFile(s.configFile())
	if err != nil {
		return // File doesn't exist yet, start empty
	}

	var states []LayerState
	if err := json.Unmarshal(data, &states); err != nil {
		s.logger.Warn("ignoring unreadable layers file", "path", s.configFile(), "error", err)
		return
	}

	for _, st := range states {
		l := NewLayer(st)
		l.attach(s.layerChanged)
		s.layers = append(s.layers, l)
	}
}

// saveToDisk persists the layer collection.
func (s *MapService) saveToDisk() error {
	if s.dataDir == "" {
		return nil
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if err := os.MkdirAll(s.dataDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.configFile(), data, 0644)
}
