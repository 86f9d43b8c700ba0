// Package doc models the artwork document tree handed over by the rasterizer
// agent's probe phase: artboards plus a nested layer tree of drawables, all
// bounds in millimetres.
package doc

// PtPerMM converts millimetres to PostScript points.
const PtPerMM = 72.0 / 25.4

// Rect is an axis-aligned rectangle with a top-left origin (y grows down),
// so Top <= Bottom for a normalized rect.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

func (r Rect) Width() float64  { return r.Right - r.Left }
func (r Rect) Height() float64 { return r.Bottom - r.Top }

func (r Rect) CenterX() float64 { return (r.Left + r.Right) / 2 }

func (r Rect) Normalized() Rect {
	if r.Left > r.Right {
		r.Left, r.Right = r.Right, r.Left
	}
	if r.Top > r.Bottom {
		r.Top, r.Bottom = r.Bottom, r.Top
	}
	return r
}

func (r Rect) Union(o Rect) Rect {
	r, o = r.Normalized(), o.Normalized()
	if o.Left < r.Left {
		r.Left = o.Left
	}
	if o.Top < r.Top {
		r.Top = o.Top
	}
	if o.Right > r.Right {
		r.Right = o.Right
	}
	if o.Bottom > r.Bottom {
		r.Bottom = o.Bottom
	}
	return r
}

// IntersectArea returns the overlap area of two rects, 0 when disjoint.
func (r Rect) IntersectArea(o Rect) float64 {
	r, o = r.Normalized(), o.Normalized()
	w := min(r.Right, o.Right) - max(r.Left, o.Left)
	h := min(r.Bottom, o.Bottom) - max(r.Top, o.Top)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func (r Rect) Scale(f float64) Rect {
	return Rect{Left: r.Left * f, Top: r.Top * f, Right: r.Right * f, Bottom: r.Bottom * f}
}

// ToPoints converts a millimetre rect to points.
func (r Rect) ToPoints() Rect { return r.Scale(PtPerMM) }

type Artboard struct {
	Name   string `json:"name"`
	Index  int    `json:"index"`
	Bounds Rect   `json:"bounds"`
}

type Drawable struct {
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Bounds  Rect    `json:"bounds"`
	Visible bool    `json:"visible"`
	Locked  bool    `json:"locked"`
	Opacity float64 `json:"opacity"`
	// LayerPath lists ancestor layer names from root to the drawable's
	// container; populated by Walk.
	LayerPath []string `json:"layerPath,omitempty"`
}

type Layer struct {
	Name      string     `json:"name"`
	Visible   bool       `json:"visible"`
	Locked    bool       `json:"locked"`
	Sublayers []Layer    `json:"sublayers,omitempty"`
	Drawables []Drawable `json:"drawables,omitempty"`
}

type Document struct {
	Name      string     `json:"name"`
	FullName  string     `json:"fullName"`
	Artboards []Artboard `json:"artboards"`
	Layers    []Layer    `json:"layers"`
}

// Walk performs a single pre-order traversal, invoking fn for every drawable
// with its ancestor chain resolved. The drawable handed to fn carries an
// effective visibility (a hidden ancestor hides its whole subtree) and a
// fresh LayerPath slice.
func (d *Document) Walk(fn func(chain []string, dr Drawable)) {
	var walk func(l Layer, chain []string, visible bool)
	walk = func(l Layer, chain []string, visible bool) {
		chain = append(chain, l.Name)
		visible = visible && l.Visible
		for _, dr := range l.Drawables {
			dr.Visible = dr.Visible && visible
			dr.LayerPath = append([]string(nil), chain...)
			fn(dr.LayerPath, dr)
		}
		for _, sub := range l.Sublayers {
			walk(sub, chain, visible)
		}
	}
	for _, l := range d.Layers {
		walk(l, nil, true)
	}
}
