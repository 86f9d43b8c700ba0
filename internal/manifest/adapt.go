package manifest

import (
	"strings"
)

// Default card dimensions in millimetres when the document carries no usable
// geometry: a standard 89x51 card, 0.35 mm stock.
const (
	defaultWidthMM  = 89
	defaultHeightMM = 51
	defaultThickMM  = 0.35
)

// ConsumerView is the stable shape downstream viewers consume. The raw v3
// manifest stays reachable under parseResult.
type ConsumerView struct {
	Dimensions  Dimensions `json:"dimensions"`
	Front       SideView   `json:"front"`
	Back        SideView   `json:"back"`
	FrontLayers []SideView `json:"frontLayers,omitempty"`
	BackLayers  []SideView `json:"backLayers,omitempty"`
	ParseResult *Manifest  `json:"parseResult"`
}

type Dimensions struct {
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
	Thickness float64 `json:"thickness"`
}

type SideView struct {
	AlbedoURL    string        `json:"albedoUrl,omitempty"`
	DieCutURL    string        `json:"dieCutUrl,omitempty"`
	FoilLayers   []FoilLayer   `json:"foilLayers"`
	UVLayers     []MaskLayer   `json:"uvLayers"`
	EmbossLayers []EmbossLayer `json:"embossLayers"`
}

type FoilLayer struct {
	ColorURL string `json:"colorUrl"`
	MaskURL  string `json:"maskUrl"`
}

type MaskLayer struct {
	MaskURL string `json:"maskUrl"`
}

type EmbossLayer struct {
	MaskURL string `json:"maskUrl"`
	Type    string `json:"type"`
}

// Adapt normalizes a v3 manifest into the consumer shape. Filenames are
// pattern-matched on their finish suffix; the emitter never mirrors, so the
// back side is delivered as-is and mirrored at display time by the viewer.
func Adapt(m *Manifest) *ConsumerView {
	v := &ConsumerView{
		Dimensions:  dimensionsOf(m),
		ParseResult: m,
	}
	for _, cm := range m.Maps.FrontCards {
		v.FrontLayers = append(v.FrontLayers, sideViewOf(m.AssetsRelBase, cm))
	}
	for _, cm := range m.Maps.BackCards {
		v.BackLayers = append(v.BackLayers, sideViewOf(m.AssetsRelBase, cm))
	}
	if len(v.FrontLayers) > 0 {
		v.Front = v.FrontLayers[0]
	} else {
		v.Front = emptySideView()
	}
	if len(v.BackLayers) > 0 {
		v.Back = v.BackLayers[0]
	} else {
		v.Back = emptySideView()
	}
	return v
}

func emptySideView() SideView {
	return SideView{FoilLayers: []FoilLayer{}, UVLayers: []MaskLayer{}, EmbossLayers: []EmbossLayer{}}
}

func sideViewOf(base string, cm CardMaps) SideView {
	sv := emptySideView()
	var foilMask, foilColor string
	for _, name := range cm.Maps {
		url := base + name
		switch {
		case strings.Contains(name, "_foil_color"):
			foilColor = url
		case strings.Contains(name, "_albedo"):
			sv.AlbedoURL = url
		case strings.Contains(name, "_diecut_mask"):
			// The raster mask is a render aid; the vector die line is the
			// consumer-facing cut path.
		case strings.Contains(name, "_diecut"):
			sv.DieCutURL = url
		case strings.Contains(name, "_foil"):
			foilMask = url
		case strings.Contains(name, "_uv"):
			sv.UVLayers = append(sv.UVLayers, MaskLayer{MaskURL: url})
		case strings.Contains(name, "_emboss"), strings.Contains(name, "_deboss"):
			typ := cm.EmbossType
			if typ == "" {
				typ = "emboss"
			}
			sv.EmbossLayers = append(sv.EmbossLayers, EmbossLayer{MaskURL: url, Type: typ})
		}
	}
	if foilMask != "" {
		sv.FoilLayers = append(sv.FoilLayers, FoilLayer{ColorURL: foilColor, MaskURL: foilMask})
	}
	return sv
}

// dimensionsOf resolves card dimensions: front geometry first, then back,
// then the first artboard, then the standard default.
func dimensionsOf(m *Manifest) Dimensions {
	if g := m.Geometry.Front; g != nil && g.SizeMM.W > 0 && g.SizeMM.H > 0 {
		return Dimensions{Width: g.SizeMM.W, Height: g.SizeMM.H, Thickness: defaultThickMM}
	}
	if g := m.Geometry.Back; g != nil && g.SizeMM.W > 0 && g.SizeMM.H > 0 {
		return Dimensions{Width: g.SizeMM.W, Height: g.SizeMM.H, Thickness: defaultThickMM}
	}
	if len(m.Doc.Artboards) > 0 {
		b := m.Doc.Artboards[0].BoundsMM
		w, h := b[2]-b[0], b[3]-b[1]
		if w > 0 && h > 0 {
			return Dimensions{Width: w, Height: h, Thickness: defaultThickMM}
		}
	}
	return Dimensions{Width: defaultWidthMM, Height: defaultHeightMM, Thickness: defaultThickMM}
}
