// Package render drives the external rasterizer agent. The agent is a black
// box: it reads a job descriptor, writes the planned files, and signals
// completion through sentinel files ({job_id}_done.txt / {job_id}_error.json).
package render

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/prooflab/cardproof-backend/internal/doc"
	"github.com/prooflab/cardproof-backend/internal/plan"
	"github.com/prooflab/cardproof-backend/internal/platform/apierr"
	"github.com/prooflab/cardproof-backend/internal/platform/logger"
)

const descriptorName = "job.descriptor"

// Descriptor is the JSON contract handed to the agent.
type Descriptor struct {
	JobID  string           `json:"job_id"`
	Input  string           `json:"input"`
	Output string           `json:"output"`
	Mode   string           `json:"mode,omitempty"` // "probe" or empty for render
	DPI    int              `json:"dpi,omitempty"`
	Plan   []DescriptorStep `json:"plan"`
}

type DescriptorStep struct {
	CardPrefix string     `json:"card_prefix"`
	CropPt     [4]float64 `json:"crop_pt"` // L, T, R, B
	Produce    []string   `json:"produce"`
}

type agentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Driver serializes invocations of one rasterizer slot. The agent is not
// assumed re-entrant, so each worker owns exactly one Driver.
type Driver struct {
	mu  sync.Mutex
	cmd []string
	log *logger.Logger
}

func New(cmd string, log *logger.Logger) *Driver {
	return &Driver{
		cmd: strings.Fields(cmd),
		log: log.With("component", "RenderDriver"),
	}
}

// Probe asks the agent for the document tree without producing assets. The
// agent writes doc.json into outDir.
func (d *Driver) Probe(ctx context.Context, jobID, input, outDir string) (*doc.Document, error) {
	desc := Descriptor{JobID: jobID, Input: input, Output: outDir, Mode: "probe", Plan: []DescriptorStep{}}
	if err := d.invoke(ctx, outDir, desc); err != nil {
		return nil, err
	}
	tree, err := doc.ParseFile(filepath.Join(outDir, "doc.json"))
	if err != nil {
		return nil, apierr.Wrap(apierr.KindRendererIncomplete, fmt.Errorf("probe produced no document tree: %w", err))
	}
	return tree, nil
}

// Render runs the agent against the export plan and asserts every planned
// file exists with non-zero size.
func (d *Driver) Render(ctx context.Context, jobID, input, outDir string, p plan.Plan) error {
	desc := Descriptor{JobID: jobID, Input: input, Output: outDir, DPI: p.DPI, Plan: make([]DescriptorStep, 0, len(p.Cards))}
	for _, card := range p.Cards {
		desc.Plan = append(desc.Plan, DescriptorStep{
			CardPrefix: card.Prefix,
			CropPt:     [4]float64{card.CropPt.Left, card.CropPt.Top, card.CropPt.Right, card.CropPt.Bottom},
			Produce:    produceTokens(card),
		})
	}
	if err := d.invoke(ctx, outDir, desc); err != nil {
		return err
	}
	for _, card := range p.Cards {
		for _, asset := range card.Assets {
			path := filepath.Join(outDir, asset.Name)
			st, err := os.Stat(path)
			if err != nil {
				return apierr.Newf(apierr.KindRendererIncomplete, "missing output %s", asset.Name)
			}
			if st.Size() == 0 {
				return apierr.Newf(apierr.KindRendererIncomplete, "zero-byte output %s", asset.Name)
			}
		}
	}
	return nil
}

// produceTokens dedupes the per-card produce list; diecut covers both the
// vector and the mask output.
func produceTokens(card plan.Card) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range card.Produce {
		if t == "diecut_mask" {
			t = "diecut"
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func (d *Driver) invoke(ctx context.Context, outDir string, desc Descriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.cmd) == 0 {
		return apierr.New(apierr.KindRendererFailed, "rasterizer command not configured")
	}

	descPath := filepath.Join(outDir, descriptorName)
	raw, err := json.MarshalIndent(desc, "", "  ")
	if err != nil {
		return apierr.Wrap(apierr.KindInternal, err)
	}
	if err := os.WriteFile(descPath, raw, 0o644); err != nil {
		return apierr.Wrap(apierr.KindInternal, err)
	}

	args := append(append([]string(nil), d.cmd[1:]...), descPath)
	cmd := exec.CommandContext(ctx, d.cmd[0], args...)
	cmd.Dir = outDir

	d.log.Debug("Invoking rasterizer", "job_id", desc.JobID, "mode", desc.Mode, "steps", len(desc.Plan))
	runErr := cmd.Run()

	// The error sentinel wins over the exit code: the agent reports typed
	// failures through it even when it exits zero.
	if msg, ok := d.readErrorSentinel(outDir, desc.JobID); ok {
		return apierr.New(apierr.KindRendererFailed, msg)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if runErr != nil {
		return apierr.Wrap(apierr.KindRendererFailed, fmt.Errorf("rasterizer exited: %w", runErr))
	}
	if _, err := os.Stat(filepath.Join(outDir, desc.JobID+"_done.txt")); err != nil {
		return apierr.New(apierr.KindRendererIncomplete, "rasterizer finished without completion sentinel")
	}
	return nil
}

func (d *Driver) readErrorSentinel(outDir, jobID string) (string, bool) {
	raw, err := os.ReadFile(filepath.Join(outDir, jobID+"_error.json"))
	if err != nil {
		return "", false
	}
	var ae agentError
	if err := json.Unmarshal(raw, &ae); err != nil {
		return "rasterizer error sentinel unreadable", true
	}
	if ae.Message == "" {
		ae.Message = ae.Code
	}
	return ae.Message, true
}
