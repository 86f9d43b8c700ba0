// Package plan turns classified buckets into a deterministic export plan: one
// crop rectangle per card plus the asset files the rasterizer must produce.
package plan

import (
	"fmt"
	"sort"

	"github.com/prooflab/cardproof-backend/internal/classify"
	"github.com/prooflab/cardproof-backend/internal/doc"
)

const DefaultDPI = 600

// Format of an expected asset file.
const (
	FormatPNG = "png"
	FormatSVG = "svg"
)

// Asset is one file the rasterizer must produce for a card.
type Asset struct {
	Name   string // e.g. front_layer_0_albedo.png
	Finish string // albedo, foil, foil_color, uv, emboss, diecut, diecut_mask
	Format string
}

// Card is the plan for one (side, card_index) pair.
type Card struct {
	Side   classify.Side
	Index  int
	Prefix string // {side}_layer_{index}
	CropPt doc.Rect
	// Produce lists the rasterizer step tokens for the descriptor.
	Produce []string
	Assets  []Asset
	// EmbossType distinguishes raised from recessed relief masks.
	EmbossType string
}

type Plan struct {
	DPI   int
	Cards []Card
}

// cardBuckets groups one card's items by finish.
type cardBuckets map[classify.Finish][]classify.Item

// Build computes the export plan. Cards are emitted front side first, then
// ascending by card index, so the same buckets always yield the same plan.
func Build(d *doc.Document, buckets classify.Buckets, dpi int) Plan {
	if dpi <= 0 {
		dpi = DefaultDPI
	}

	type cardKey struct {
		side classify.Side
		idx  int
	}
	cards := make(map[cardKey]cardBuckets)
	for key, items := range buckets {
		ck := cardKey{key.Side, key.Card}
		if cards[ck] == nil {
			cards[ck] = make(cardBuckets)
		}
		cards[ck][key.Finish] = append(cards[ck][key.Finish], items...)
	}

	keys := make([]cardKey, 0, len(cards))
	for ck := range cards {
		keys = append(keys, ck)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].side != keys[j].side {
			return keys[i].side == classify.SideFront
		}
		return keys[i].idx < keys[j].idx
	})

	p := Plan{DPI: dpi}
	for _, ck := range keys {
		p.Cards = append(p.Cards, buildCard(d, ck.side, ck.idx, cards[ck]))
	}
	return p
}

func buildCard(d *doc.Document, side classify.Side, idx int, cb cardBuckets) Card {
	card := Card{
		Side:   side,
		Index:  idx,
		Prefix: fmt.Sprintf("%s_layer_%d", side, idx),
		CropPt: cropFor(d, cb),
	}

	hasDie := len(cb[classify.FinishDie]) > 0
	hasFoil := len(cb[classify.FinishFoil]) > 0
	hasUV := len(cb[classify.FinishUV]) > 0
	hasEmboss := len(cb[classify.FinishEmboss]) > 0
	hasDeboss := len(cb[classify.FinishDeboss]) > 0
	dieOnly := hasDie && len(cb) == 1

	if !dieOnly {
		card.add("albedo", FormatPNG, "albedo")
	}
	if hasFoil {
		card.add("foil", FormatPNG, "foil")
		card.add("foil_color", FormatPNG, "foil_color")
	}
	if hasUV {
		card.add("uv", FormatPNG, "uv")
	}
	if hasEmboss || hasDeboss {
		card.add("emboss", FormatPNG, "emboss")
		if hasEmboss {
			card.EmbossType = string(classify.FinishEmboss)
		} else {
			card.EmbossType = string(classify.FinishDeboss)
		}
	}
	if hasDie {
		card.Produce = append(card.Produce, "diecut")
		card.Assets = append(card.Assets,
			Asset{Name: card.Prefix + "_diecut.svg", Finish: "diecut", Format: FormatSVG},
			Asset{Name: card.Prefix + "_diecut_mask.png", Finish: "diecut_mask", Format: FormatPNG},
		)
	}
	return card
}

func (c *Card) add(finish, format, produce string) {
	c.Produce = append(c.Produce, produce)
	c.Assets = append(c.Assets, Asset{
		Name:   fmt.Sprintf("%s_%s.%s", c.Prefix, finish, format),
		Finish: finish,
		Format: format,
	})
}

// cropFor picks the crop rectangle in points: die union, else print union,
// else the union of the effect buckets, else the first artboard.
func cropFor(d *doc.Document, cb cardBuckets) doc.Rect {
	if r, ok := unionOf(cb[classify.FinishDie]); ok {
		return finishCrop(r)
	}
	if r, ok := unionOf(cb[classify.FinishPrint]); ok {
		return finishCrop(r)
	}
	var effects []classify.Item
	for _, f := range []classify.Finish{classify.FinishFoil, classify.FinishUV, classify.FinishEmboss, classify.FinishDeboss} {
		effects = append(effects, cb[f]...)
	}
	if r, ok := unionOf(effects); ok {
		return finishCrop(r)
	}
	if len(d.Artboards) > 0 {
		return finishCrop(d.Artboards[0].Bounds)
	}
	return finishCrop(doc.Rect{})
}

func unionOf(items []classify.Item) (doc.Rect, bool) {
	if len(items) == 0 {
		return doc.Rect{}, false
	}
	r := items[0].Bounds.Normalized()
	for _, it := range items[1:] {
		r = r.Union(it.Bounds)
	}
	return r, true
}

// finishCrop converts mm to points, normalizes, and pads degenerate rects by
// one point so width and height are strictly positive.
func finishCrop(r doc.Rect) doc.Rect {
	r = r.Normalized().ToPoints()
	if r.Width() <= 0 {
		r.Right = r.Left + 1
	}
	if r.Height() <= 0 {
		r.Bottom = r.Top + 1
	}
	return r
}
