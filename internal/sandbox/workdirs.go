// Package sandbox implements WorkDirs: the per-job filesystem sandbox
// with its well-known subpaths (video, frames, candidates, extracted,
// final, commercial). It is a thin, job-scoped wrapper over
// internal/storage.Sandbox, which already implements path-traversal
// protection, atomic writes, and atomic publish — that package is
// generic filesystem infrastructure, not specific to this pipeline, so
// it is reused directly rather than rewritten.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmylchreest/commercestack/internal/storage"
)

// Subpath names a well-known WorkDirs subdirectory.
type Subpath string

const (
	SubpathVideo      Subpath = "video"
	SubpathFrames     Subpath = "frames"
	SubpathCandidates Subpath = "candidates"
	SubpathExtracted  Subpath = "extracted"
	SubpathFinal      Subpath = "final"
	SubpathCommercial Subpath = "commercial"
)

var allSubpaths = []Subpath{SubpathVideo, SubpathFrames, SubpathCandidates, SubpathExtracted, SubpathFinal, SubpathCommercial}

// WorkDirs is the per-job sandbox. Processors receive it read/write
// but must only create files under their phase's subpath.
type WorkDirs struct {
	jobID string
	box   *storage.Sandbox
}

// New creates (or reopens) the WorkDirs for jobID rooted at
// filepath.Join(root, jobID), creating every well-known subpath.
func New(root, jobID string) (*WorkDirs, error) {
	box, err := storage.NewSandbox(filepath.Join(root, jobID))
	if err != nil {
		return nil, fmt.Errorf("sandbox: opening work dirs for job %s: %w", jobID, err)
	}
	wd := &WorkDirs{jobID: jobID, box: box}
	for _, sp := range allSubpaths {
		if err := box.MkdirAll(string(sp)); err != nil {
			return nil, fmt.Errorf("sandbox: creating subpath %q: %w", sp, err)
		}
	}
	return wd, nil
}

// Root satisfies pipelinecore.Sandbox.
func (w *WorkDirs) Root() string {
	return w.box.BaseDir()
}

// Subpath resolves the absolute path of a named well-known subpath,
// satisfying pipelinecore.Sandbox. Any string is accepted so
// processors may address nested paths within a subpath
// (e.g. "frames/batch-3"); traversal outside the sandbox root is
// rejected by the underlying storage.Sandbox.ResolvePath.
func (w *WorkDirs) Subpath(name string) (string, error) {
	return w.box.ResolvePath(name)
}

// Box returns the underlying generic sandbox for processors that need
// the fuller file API (WriteFile, AtomicWrite, Walk, ...).
func (w *WorkDirs) Box() *storage.Sandbox {
	return w.box
}

// Remove deletes the entire per-job sandbox. The job service does not
// call it, so a job's sandbox stays on disk after the job ends.
//
// storage.Sandbox.RemoveAll refuses to remove its own base directory
// by design (a safety rail against a caller accidentally wiping the
// sandbox root via a crafted relative path); WorkDirs owns the whole
// per-job directory outright, so it removes it directly instead.
func (w *WorkDirs) Remove() error {
	if err := os.RemoveAll(w.box.BaseDir()); err != nil {
		return fmt.Errorf("sandbox: removing work dirs for job %s: %w", w.jobID, err)
	}
	return nil
}
