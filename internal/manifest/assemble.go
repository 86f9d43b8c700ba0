package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prooflab/cardproof-backend/internal/classify"
	"github.com/prooflab/cardproof-backend/internal/doc"
	"github.com/prooflab/cardproof-backend/internal/plan"
	"github.com/prooflab/cardproof-backend/internal/platform/apierr"
)

// slotFor maps a plan asset finish to its maps key.
func slotFor(finish string) string {
	switch finish {
	case "foil_color":
		return "foilColor"
	case "diecut_mask":
		return "diecutMask"
	default:
		return finish
	}
}

// Assemble merges the document, the classified items, the plan, and the files
// the rasterizer produced into a v3 manifest. Every referenced asset must
// exist on disk with non-zero size, otherwise assembly fails.
func Assemble(jobID string, d *doc.Document, buckets classify.Buckets, p plan.Plan, resultDir string) (*Manifest, error) {
	m := &Manifest{
		JobID:         jobID,
		V:             Version,
		AssetsRelBase: fmt.Sprintf("assets/%s/", jobID),
		Doc: DocInfo{
			Name:      d.Name,
			FullName:  d.FullName,
			Units:     "mm",
			Artboards: artboardInfos(d.Artboards),
		},
		Diagnostics: Diagnostics{
			Front: map[string]int{},
			Back:  map[string]int{},
		},
		Maps:     Maps{FrontCards: []CardMaps{}, BackCards: []CardMaps{}},
		Geometry: Geometry{FrontCards: []CardGeo{}, BackCards: []CardGeo{}},
	}

	for _, it := range buckets.Items() {
		m.Items = append(m.Items, Item{
			Name:      it.Name,
			Type:      it.Type,
			Side:      string(it.Key.Side),
			Card:      it.Key.Card,
			Finish:    string(it.Key.Finish),
			BoundsMM:  rectArr(it.Bounds),
			Visible:   it.Visible,
			Opacity:   it.Opacity,
			LayerPath: it.LayerPath,
		})
		side := m.Diagnostics.Front
		if it.Key.Side == classify.SideBack {
			side = m.Diagnostics.Back
		}
		side[string(it.Key.Finish)]++
	}

	for _, card := range p.Cards {
		maps := make(SideMaps, len(card.Assets))
		for _, asset := range card.Assets {
			if err := statNonEmpty(filepath.Join(resultDir, asset.Name)); err != nil {
				return nil, err
			}
			maps[slotFor(asset.Finish)] = asset.Name
		}
		cm := CardMaps{Index: card.Index, Maps: maps, EmbossType: card.EmbossType}
		cg := CardGeo{Index: card.Index, Meta: geoMeta(card.CropPt, p.DPI)}
		if card.Side == classify.SideFront {
			m.Maps.FrontCards = append(m.Maps.FrontCards, cm)
			m.Geometry.FrontCards = append(m.Geometry.FrontCards, cg)
		} else {
			m.Maps.BackCards = append(m.Maps.BackCards, cm)
			m.Geometry.BackCards = append(m.Geometry.BackCards, cg)
		}
	}

	// Legacy aliases: the first card of each side is also exposed flat.
	if len(m.Maps.FrontCards) > 0 {
		m.Maps.Front = m.Maps.FrontCards[0].Maps
		meta := m.Geometry.FrontCards[0].Meta
		m.Geometry.Front = &meta
	}
	if len(m.Maps.BackCards) > 0 {
		m.Maps.Back = m.Maps.BackCards[0].Maps
		meta := m.Geometry.BackCards[0].Meta
		m.Geometry.Back = &meta
	}
	return m, nil
}

func statNonEmpty(path string) error {
	st, err := os.Stat(path)
	if err != nil {
		return apierr.Newf(apierr.KindRendererIncomplete, "manifest references missing asset %s", filepath.Base(path))
	}
	if st.Size() == 0 {
		return apierr.Newf(apierr.KindRendererIncomplete, "manifest references empty asset %s", filepath.Base(path))
	}
	return nil
}

func artboardInfos(abs []doc.Artboard) []ArtboardInfo {
	out := make([]ArtboardInfo, 0, len(abs))
	for _, ab := range abs {
		out = append(out, ArtboardInfo{Name: ab.Name, Index: ab.Index, BoundsMM: rectArr(ab.Bounds)})
	}
	return out
}

func rectArr(r doc.Rect) [4]float64 {
	return [4]float64{r.Left, r.Top, r.Right, r.Bottom}
}

// geoMeta derives the card geometry from its crop: millimetre size/origin and
// the raster pixel size at the export DPI.
func geoMeta(cropPt doc.Rect, dpi int) GeoMeta {
	mm := cropPt.Scale(1 / doc.PtPerMM)
	return GeoMeta{
		SizeMM:   Size{W: round2(mm.Width()), H: round2(mm.Height())},
		OriginMM: Point{X: round2(mm.Left), Y: round2(mm.Top)},
		Px: SizePx{
			W: int(cropPt.Width()/72.0*float64(dpi) + 0.5),
			H: int(cropPt.Height()/72.0*float64(dpi) + 0.5),
		},
		DPI: dpi,
	}
}

func round2(v float64) float64 {
	if v < 0 {
		return float64(int(v*100-0.5)) / 100
	}
	return float64(int(v*100+0.5)) / 100
}
