package capability

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// LocalVideoAssembler renders to the local filesystem under a hashed
// output name (script id plus a fresh uuid), the same bookkeeping shape
// as the teacher's on-disk media store (never trust a caller-supplied
// filename).
type LocalVideoAssembler struct {
	OutputDir string
	// Render performs the actual assembly; swappable in tests. The
	// default shells out to nothing — callers are expected to supply a
	// real renderer in production, since the core has no opinion on the
	// rendering engine (spec §1, out of scope).
	Render func(ctx context.Context, script Script, assets []Asset, voice string, outPath string, progress ProgressFunc) (int, error)
}

// NewLocalVideoAssembler constructs an assembler writing under outputDir,
// creating it if necessary.
func NewLocalVideoAssembler(outputDir string) (*LocalVideoAssembler, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create video output dir: %w", err)
	}
	return &LocalVideoAssembler{OutputDir: outputDir}, nil
}

// Assemble implements VideoAssembler. The output filename is derived
// from the script id and a fresh uuid so repeated attempts for the same
// job never collide with a half-written artifact from a prior attempt.
func (a *LocalVideoAssembler) Assemble(ctx context.Context, script Script, assets []Asset, voice string, progress ProgressFunc) (VideoArtifact, error) {
	if a.Render == nil {
		return VideoArtifact{}, fmt.Errorf("%s: no renderer configured", "assemble")
	}

	hash := sha256.Sum256([]byte(script.ID + uuid.NewString()))
	name := hex.EncodeToString(hash[:8]) + ".mp4"
	outPath := filepath.Join(a.OutputDir, name)

	renderCtx, cancel := context.WithTimeout(ctx, renderDeadline)
	defer cancel()

	durationSeconds, err := a.Render(renderCtx, script, assets, voice, outPath, progress)
	if err != nil {
		return VideoArtifact{}, fmt.Errorf("assemble video: %w", err)
	}

	return VideoArtifact{Path: outPath, DurationSeconds: durationSeconds}, nil
}

// renderDeadline bounds how long a single render may run before the
// assembler itself gives up, independent of any executor-level timeout
// policy; kept generous since rendering is the slowest pipeline stage.
const renderDeadline = 30 * time.Minute
