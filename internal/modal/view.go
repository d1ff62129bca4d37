package modal

import (
	"strconv"
	"strings"
	"sync"

	"golang.org/x/text/language"

	"github.com/joeblew999/plat-geo-ogc/internal/i18n"
	"github.com/joeblew999/plat-geo-ogc/internal/ogc"
)

const baseClassName = "sdk-component add-layer-modal"

// Icon marks a list item as a folder or a layer.
type Icon int

const (
	IconNone Icon = iota
	IconFolder
	IconLayer
)

func (i Icon) String() string {
	switch i {
	case IconFolder:
		return "folder"
	case IconLayer:
		return "layer"
	default:
		return ""
	}
}

// Item is one node of the rendered capability tree.
type Item struct {
	Path          string
	Key           string
	Icon          Icon
	Primary       string
	EmptyTitle    bool
	Secondary     string
	Clickable     bool
	InitiallyOpen bool
	Nested        []Item
}

// Input is the URL field and its connect button.
type Input struct {
	Label        string
	Value        string
	ConnectLabel string
}

// Banner is the error notice.
type Banner struct {
	Open    bool
	Message string
}

// View is the render tree of the dialog.
type View struct {
	Open         bool
	Title        string
	ClassName    string
	Input        *Input
	Items        []Item
	Error        *Banner
	CloseLabel   string
	Loading      bool
	LoadingLabel string
}

// Theme carries presentation settings down the render tree.
type Theme struct {
	ClassName string
}

// ClassNames returns the dialog's CSS classes.
func (t Theme) ClassNames() string {
	if t.ClassName == "" {
		return baseClassName
	}
	return baseClassName + " " + t.ClassName
}

// Component renders a state in a locale.
type Component func(State, i18n.Localizer) View

// Dialog returns the plain dialog component for cfg.
func Dialog(cfg Config, theme Theme) Component {
	return func(s State, loc i18n.Localizer) View {
		serviceType := i18n.Args{"serviceType": cfg.ServiceType()}
		v := View{
			Open:         s.Open,
			Title:        loc.Format(i18n.MsgTitle, serviceType),
			ClassName:    theme.ClassNames(),
			CloseLabel:   loc.Format(i18n.MsgCloseButton, nil),
			Loading:      s.Loading,
			LoadingLabel: loc.Format(i18n.MsgLoading, nil),
		}
		if cfg.AllowUserInput {
			v.Input = &Input{
				Label:        loc.Format(i18n.MsgInputFieldLabel, serviceType),
				Value:        s.Input,
				ConnectLabel: loc.Format(i18n.MsgConnectButton, nil),
			}
		}
		if s.LayerInfo != nil {
			v.Items = []Item{renderItem(s.LayerInfo, "0", loc)}
		}
		if s.Error && s.Failure != nil {
			v.Error = &Banner{Open: s.ErrorOpen, Message: s.Failure.Message(loc)}
		}
		return v
	}
}

func renderItem(node *ogc.Layer, path string, loc i18n.Localizer) Item {
	title, empty := layerTitle(node, loc)
	it := Item{
		Path:          path,
		Key:           node.Name,
		Primary:       title,
		EmptyTitle:    empty,
		Secondary:     node.Name,
		Clickable:     node.Selectable(),
		InitiallyOpen: true,
	}
	switch {
	case node.IsGroup():
		it.Icon = IconFolder
	case node.IsLeaf():
		it.Icon = IconLayer
	}
	for i, child := range node.Layer {
		it.Nested = append(it.Nested, renderItem(child, path+"-"+strconv.Itoa(i), loc))
	}
	return it
}

// Pure caches the last view and returns it again while the state version
// and locale are unchanged.
func Pure(render Component) Component {
	var (
		mu     sync.Mutex
		cached bool
		ver    uint64
		tag    language.Tag
		last   View
	)
	return func(s State, loc i18n.Localizer) View {
		mu.Lock()
		defer mu.Unlock()
		if cached && s.Version == ver && loc.Tag() == tag {
			return last
		}
		last = render(s, loc)
		cached, ver, tag = true, s.Version, loc.Tag()
		return last
	}
}

// Localized binds a component to a localizer.
func Localized(render Component, loc i18n.Localizer) func(State) View {
	return func(s State) View {
		return render(s, loc)
	}
}

// View renders the current state. A nil localizer uses the controller's.
func (c *Controller) View(loc i18n.Localizer) View {
	if loc == nil {
		loc = c.deps.Localizer
	}
	return c.render()(c.State(), loc)
}

func (c *Controller) render() Component {
	c.renderOnce.Do(func() {
		c.component = Pure(Dialog(c.cfg, Theme{ClassName: c.cfg.ClassName}))
	})
	return c.component
}

// Flatten lists items depth first.
func Flatten(items []Item) []Item {
	var out []Item
	for _, it := range items {
		out = append(out, it)
		out = append(out, Flatten(it.Nested)...)
	}
	return out
}

// Depth returns the nesting level of an item path.
func Depth(path string) int {
	return strings.Count(path, "-")
}
