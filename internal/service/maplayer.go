package service

import (
	"sync"

	"github.com/joeblew999/plat-geo-ogc/internal/ogc"
)

// Layer is a live map layer. Fields set after creation (style name, WFS
// schema, selectability, visibility) are eventually consistent: they may be
// filled in by asynchronous lookups after the layer is already on the map.
type Layer struct {
	mu       sync.RWMutex
	state    LayerState
	children []*Layer
	onChange func(*Layer)
}

// NewLayer creates a layer from a snapshot. Child snapshots become child layers.
func NewLayer(st LayerState) *Layer {
	l := &Layer{state: st}
	l.state.Layers = nil
	for _, child := range st.Layers {
		l.children = append(l.children, NewLayer(child))
	}
	return l
}

// NewGroup creates an empty, visible layer group.
func NewGroup(id, title, typ string) *Layer {
	return &Layer{state: LayerState{
		ID:      id,
		Name:    id,
		Title:   title,
		Kind:    KindGroup,
		Type:    typ,
		Visible: true,
	}}
}

func (l *Layer) ID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.ID
}

func (l *Layer) Type() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Type
}

func (l *Layer) Kind() LayerKind {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Kind
}

func (l *Layer) Visible() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Visible
}

func (l *Layer) Removable() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.Removable
}

// Children returns the group's child layers in order.
func (l *Layer) Children() []*Layer {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Layer, len(l.children))
	copy(out, l.children)
	return out
}

// Snapshot returns a deep copy of the layer state.
func (l *Layer) Snapshot() LayerState {
	l.mu.RLock()
	st := l.state
	children := make([]*Layer, len(l.children))
	copy(children, l.children)
	l.mu.RUnlock()

	if len(st.Layers) == 0 {
		st.Layers = nil
	}
	for _, c := range children {
		st.Layers = append(st.Layers, c.Snapshot())
	}
	return st
}

func (l *Layer) SetVisible(v bool) {
	l.update(func(st *LayerState) { st.Visible = v })
}

func (l *Layer) SetStyleName(name string) {
	l.update(func(st *LayerState) { st.StyleName = name })
}

func (l *Layer) SetSelectable(v bool) {
	l.update(func(st *LayerState) { st.Selectable = v })
}

// SetWFSInfo sets or, with nil, clears the feature type schema.
func (l *Layer) SetWFSInfo(info *ogc.FeatureTypeInfo) {
	l.update(func(st *LayerState) { st.WFSInfo = info })
}

// AppendChild adds child as the last layer of the group.
func (l *Layer) AppendChild(child *Layer) {
	l.mu.Lock()
	l.children = append(l.children, child)
	notify := l.onChange
	l.mu.Unlock()

	child.attach(notify)
	if notify != nil {
		notify(l)
	}
}

// removeChild removes the first child with id, searching nested groups.
func (l *Layer) removeChild(id string) (*Layer, bool) {
	l.mu.Lock()
	for i, c := range l.children {
		if c.ID() == id {
			l.children = append(l.children[:i:i], l.children[i+1:]...)
			l.mu.Unlock()
			return c, true
		}
	}
	children := make([]*Layer, len(l.children))
	copy(children, l.children)
	l.mu.Unlock()

	for _, c := range children {
		if removed, ok := c.removeChild(id); ok {
			return removed, true
		}
	}
	return nil, false
}

func (l *Layer) update(fn func(*LayerState)) {
	l.mu.Lock()
	fn(&l.state)
	notify := l.onChange
	l.mu.Unlock()

	if notify != nil {
		notify(l)
	}
}

// attach sets the change callback on l and its descendants.
func (l *Layer) attach(fn func(*Layer)) {
	l.mu.Lock()
	l.onChange = fn
	children := make([]*Layer, len(l.children))
	copy(children, l.children)
	l.mu.Unlock()

	for _, c := range children {
		c.attach(fn)
	}
}

// find returns l or the first descendant with id.
func (l *Layer) find(id string) (*Layer, bool) {
	if l.ID() == id {
		return l, true
	}
	for _, c := range l.Children() {
		if found, ok := c.find(id); ok {
			return found, true
		}
	}
	return nil, false
}
