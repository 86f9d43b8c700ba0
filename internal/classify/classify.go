// Package classify sorts a document's drawables into (side, card, finish)
// buckets. Classification is name-token driven with geometric fallbacks and
// never fails: every cascade bottoms out in a default.
package classify

import (
	"regexp"
	"sort"
	"strings"

	"github.com/prooflab/cardproof-backend/internal/doc"
)

type Side string

const (
	SideFront Side = "front"
	SideBack  Side = "back"
)

type Finish string

const (
	FinishPrint  Finish = "print"
	FinishFoil   Finish = "foil"
	FinishUV     Finish = "uv"
	FinishEmboss Finish = "emboss"
	FinishDeboss Finish = "deboss"
	FinishDie    Finish = "die"
)

// Key identifies one bucket.
type Key struct {
	Side   Side
	Card   int
	Finish Finish
}

// Item is a drawable plus its resolved bucket key. Bounds stay the sole
// source of truth for crop computation.
type Item struct {
	doc.Drawable
	Key Key
}

// Buckets maps keys to items in document pre-order.
type Buckets map[Key][]Item

// SortedKeys returns bucket keys in a stable order: front before back, then
// ascending card index, then finish precedence.
func (b Buckets) SortedKeys() []Key {
	keys := make([]Key, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Side != keys[j].Side {
			return keys[i].Side == SideFront
		}
		if keys[i].Card != keys[j].Card {
			return keys[i].Card < keys[j].Card
		}
		return finishRank(keys[i].Finish) < finishRank(keys[j].Finish)
	})
	return keys
}

// finishRank encodes the precedence die > emboss > deboss > foil > uv > print.
func finishRank(f Finish) int {
	switch f {
	case FinishDie:
		return 0
	case FinishEmboss:
		return 1
	case FinishDeboss:
		return 2
	case FinishFoil:
		return 3
	case FinishUV:
		return 4
	default:
		return 5
	}
}

var (
	dieWordRe   = regexp.MustCompile(`(?:^|[\s_\-])die(?:$|[\s_\-])`)
	uvWordRe    = regexp.MustCompile(`(?:^|[\s_\-])uv(?:$|[\s_\-])`)
	cardLayerRe = regexp.MustCompile(`(?:front|back)_layer_(\d+)`)
	anyIndexRe  = regexp.MustCompile(`_(\d+)`)
)

var dieTokens = []string{
	"laser_cut", "laser-cut", "laser", "cutline", "cut_line",
	"die_cut", "die-cut", "diecut",
}

var uvTokens = []string{
	"spot_uv", "spot-uv", "spotuv", "varnish", "gloss", "matte",
	"lamination", "raised_uv",
}

// finishOfName classifies a single name, applying the finish precedence when
// several token classes match at once. ok is false when no token matched.
func finishOfName(name string) (Finish, bool) {
	n := strings.ToLower(name)
	for _, t := range dieTokens {
		if strings.Contains(n, t) {
			return FinishDie, true
		}
	}
	if dieWordRe.MatchString(n) {
		return FinishDie, true
	}
	if strings.Contains(n, "emboss") {
		return FinishEmboss, true
	}
	if strings.Contains(n, "deboss") {
		return FinishDeboss, true
	}
	if strings.Contains(n, "foil") {
		return FinishFoil, true
	}
	for _, t := range uvTokens {
		if strings.Contains(n, t) {
			return FinishUV, true
		}
	}
	if uvWordRe.MatchString(n) {
		return FinishUV, true
	}
	return FinishPrint, false
}

// resolveFinish walks the drawable's own name and then its ancestor chain
// deepest-first; the most specific match wins.
func resolveFinish(chain []string, name string) Finish {
	if f, ok := finishOfName(name); ok {
		return f
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if f, ok := finishOfName(chain[i]); ok {
			return f
		}
	}
	return FinishPrint
}

// resolveSide prefers an explicit front/back marker on the drawable or its
// ancestors (deepest first), then falls back to artboard overlap, then to
// left/right ordering of artboard centers.
func resolveSide(chain []string, name string, bounds doc.Rect, artboards []doc.Artboard) Side {
	if s, ok := sideOfName(name); ok {
		return s
	}
	for i := len(chain) - 1; i >= 0; i-- {
		if s, ok := sideOfName(chain[i]); ok {
			return s
		}
	}

	best := -1
	bestArea := 0.0
	for i, ab := range artboards {
		if a := ab.Bounds.IntersectArea(bounds); a > bestArea {
			bestArea = a
			best = i
		}
	}
	if best >= 0 {
		if s, ok := sideOfName(artboards[best].Name); ok {
			return s
		}
		return sideByOrdering(artboards, best)
	}
	return SideFront
}

func sideOfName(name string) (Side, bool) {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "front"):
		return SideFront, true
	case strings.Contains(n, "back"):
		return SideBack, true
	default:
		return SideFront, false
	}
}

// sideByOrdering maps the left half of the artboards (by center X) to front
// and the right half to back.
func sideByOrdering(artboards []doc.Artboard, chosen int) Side {
	if len(artboards) < 2 {
		return SideFront
	}
	order := make([]int, len(artboards))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return artboards[order[i]].Bounds.CenterX() < artboards[order[j]].Bounds.CenterX()
	})
	for pos, idx := range order {
		if idx == chosen {
			if pos < (len(order)+1)/2 {
				return SideFront
			}
			return SideBack
		}
	}
	return SideFront
}

// resolveCard extracts a card index from the ancestor chain, deepest first:
// a {side}_layer_{n} marker wins, then any _{n} suffix, default 0.
func resolveCard(chain []string, name string) int {
	names := append(append([]string(nil), chain...), name)
	for i := len(names) - 1; i >= 0; i-- {
		if m := cardLayerRe.FindStringSubmatch(strings.ToLower(names[i])); m != nil {
			return atoiSafe(m[1])
		}
	}
	for i := len(names) - 1; i >= 0; i-- {
		if m := anyIndexRe.FindStringSubmatch(names[i]); m != nil {
			return atoiSafe(m[1])
		}
	}
	return 0
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
		if n > 1<<20 {
			return 0
		}
	}
	return n
}

// keepHidden reports whether a hidden drawable still participates; die, print,
// uv and foil geometry is meaningful even when hidden at author time.
func keepHidden(f Finish) bool {
	switch f {
	case FinishDie, FinishPrint, FinishUV, FinishFoil:
		return true
	default:
		return false
	}
}

// Classify runs the single-pass classification. Output order within each
// bucket follows the pre-order walk of the tree, so the result is
// deterministic for identical input.
func Classify(d *doc.Document) Buckets {
	buckets := make(Buckets)
	d.Walk(func(chain []string, dr doc.Drawable) {
		finish := resolveFinish(chain, dr.Name)
		if !dr.Visible && !keepHidden(finish) {
			return
		}
		key := Key{
			Side:   resolveSide(chain, dr.Name, dr.Bounds, d.Artboards),
			Card:   resolveCard(chain, dr.Name),
			Finish: finish,
		}
		buckets[key] = append(buckets[key], Item{Drawable: dr, Key: key})
	})
	return buckets
}

// Items flattens buckets into a deterministic list, grouped by sorted key
// with pre-order item order inside each group, for the manifest's items array.
func (b Buckets) Items() []Item {
	var out []Item
	for _, k := range b.SortedKeys() {
		out = append(out, b[k]...)
	}
	return out
}
