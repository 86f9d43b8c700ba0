// Package manifest builds the v3 render manifest from an export plan plus the
// files the rasterizer produced, and adapts it into the stable consumer shape
// on the retrieval path.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const Version = 3

// FileName is the manifest's on-disk name inside a job's result directory.
const FileName = "manifest.json"

type Manifest struct {
	JobID         string      `json:"jobId"`
	Doc           DocInfo     `json:"doc"`
	Items         []Item      `json:"items"`
	Maps          Maps        `json:"maps"`
	Geometry      Geometry    `json:"geometry"`
	Diagnostics   Diagnostics `json:"diagnostics"`
	AssetsRelBase string      `json:"assetsRelBase"`
	V             int         `json:"v"`
}

type DocInfo struct {
	Name      string         `json:"name"`
	FullName  string         `json:"fullName"`
	Units     string         `json:"units"` // always "mm"
	Artboards []ArtboardInfo `json:"artboards"`
}

type ArtboardInfo struct {
	Name     string     `json:"name"`
	Index    int        `json:"index"`
	BoundsMM [4]float64 `json:"boundsMm"` // L, T, R, B
}

type Item struct {
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Side      string     `json:"side"`
	Card      int        `json:"card"`
	Finish    string     `json:"finish"`
	BoundsMM  [4]float64 `json:"boundsMm"`
	Visible   bool       `json:"visible"`
	Opacity   float64    `json:"opacity"`
	LayerPath []string   `json:"layerPath,omitempty"`
}

// SideMaps maps a finish slot to the produced filename, e.g.
// "albedo" -> "front_layer_0_albedo.png".
type SideMaps map[string]string

type CardMaps struct {
	Index      int      `json:"index"`
	Maps       SideMaps `json:"maps"`
	EmbossType string   `json:"embossType,omitempty"`
}

// Maps carries per-card asset names plus legacy flat aliases for the first
// card of each side.
type Maps struct {
	Front      SideMaps   `json:"front,omitempty"`
	Back       SideMaps   `json:"back,omitempty"`
	FrontCards []CardMaps `json:"frontCards"`
	BackCards  []CardMaps `json:"backCards"`
}

type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type SizePx struct {
	W int `json:"w"`
	H int `json:"h"`
}

type GeoMeta struct {
	SizeMM   Size   `json:"sizeMm"`
	OriginMM Point  `json:"originMm"`
	Px       SizePx `json:"px"`
	DPI      int    `json:"dpi"`
}

type CardGeo struct {
	Index int     `json:"index"`
	Meta  GeoMeta `json:"meta"`
}

type Geometry struct {
	Front      *GeoMeta  `json:"front,omitempty"`
	Back       *GeoMeta  `json:"back,omitempty"`
	FrontCards []CardGeo `json:"frontCards"`
	BackCards  []CardGeo `json:"backCards"`
}

// Diagnostics holds per-side bucket counts keyed by finish.
type Diagnostics struct {
	Front map[string]int `json:"front"`
	Back  map[string]int `json:"back"`
}

func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

// Write serializes the manifest into dir under FileName.
func (m *Manifest) Write(dir string) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, FileName), raw, 0o644)
}
