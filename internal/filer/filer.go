// Package filer implements the directory-rooted stage state machine: each
// audio file in flight lives under exactly one of incoming/working/
// processed/failed, and moves between stages are collision-free and
// atomic at the filesystem level.
package filer

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/batchtx/transcriber/internal/apperr"
	"github.com/batchtx/transcriber/internal/logger"
)

// Stage is one of the four subdirectories rooted at a job's base_dir.
type Stage string

const (
	StageIncoming  Stage = "incoming"
	StageWorking   Stage = "working"
	StageProcessed Stage = "processed"
	StageFailed    Stage = "failed"
)

// MetaExt is the fixed extension for a companion metadata file.
const MetaExt = ".meta"

// Filer scopes all operations to a single base directory.
type Filer struct {
	baseDir string
}

// New returns a Filer rooted at baseDir.
func New(baseDir string) *Filer {
	return &Filer{baseDir: baseDir}
}

func (f *Filer) stageDir(stage Stage) string {
	return filepath.Join(f.baseDir, string(stage))
}

func (f *Filer) path(name string, stage Stage) string {
	return filepath.Join(f.stageDir(stage), name)
}

// Move renames a file from one stage directory to another, creating the
// destination directory if needed and removing any existing file at the
// destination name first. It fails if the source file is missing.
func (f *Filer) Move(srcName, dstName string, srcStage, dstStage Stage) error {
	srcPath := f.path(srcName, srcStage)
	if _, err := os.Stat(srcPath); err != nil {
		return apperr.Invalid(fmt.Sprintf("move source missing: %s", srcPath), err)
	}

	dstDir := f.stageDir(dstStage)
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return apperr.Internal("create destination stage dir", err)
	}

	dstPath := filepath.Join(dstDir, dstName)
	if _, err := os.Stat(dstPath); err == nil {
		if err := os.Remove(dstPath); err != nil {
			return apperr.Internal("remove pre-existing destination", err)
		}
	}

	if err := os.Rename(srcPath, dstPath); err != nil {
		return apperr.Unavailable("rename file between stages", err)
	}
	return nil
}

// MoveWithCompanion moves the named file and, best-effort, its .meta
// companion (if one exists). The audio move is mandatory and its failure
// is returned; a companion move failure is only logged.
func (f *Filer) MoveWithCompanion(srcName, dstName string, srcStage, dstStage Stage) error {
	if err := f.Move(srcName, dstName, srcStage, dstStage); err != nil {
		return err
	}

	srcMeta := ReplaceExt(srcName, MetaExt)
	dstMeta := ReplaceExt(dstName, MetaExt)
	if _, err := os.Stat(f.path(srcMeta, srcStage)); err != nil {
		return nil // no companion file present; not fatal
	}
	if err := f.Move(srcMeta, dstMeta, srcStage, dstStage); err != nil {
		logger.WarnErr("companion .meta move failed", err,
			zap.String("src", srcMeta), logger.WithStage(string(dstStage)))
	}
	return nil
}

// CollisionFreeName returns name if it doesn't already exist in stage, or
// the first name.N.ext candidate that doesn't.
func (f *Filer) CollisionFreeName(name string, stage Stage) (string, error) {
	if _, err := os.Stat(f.path(name, stage)); os.IsNotExist(err) {
		return name, nil
	} else if err != nil {
		return "", apperr.Internal("stat candidate name", err)
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%d%s", stem, i, ext)
		_, err := os.Stat(f.path(candidate, stage))
		if os.IsNotExist(err) {
			return candidate, nil
		}
		if err != nil {
			return "", apperr.Internal("stat candidate name", err)
		}
	}
}

// ReplaceExt replaces only the last extension segment of name with ext.
// "archive.tar.gz" + ".lat" -> "archive.tar.lat".
func ReplaceExt(name, ext string) string {
	cur := filepath.Ext(name)
	return strings.TrimSuffix(name, cur) + ext
}

// SaveText writes content to name under stage, creating the stage
// directory if absent. The write is atomic: a temp file is written and
// synced, then renamed into place.
func (f *Filer) SaveText(name string, stage Stage, content string) error {
	return f.SaveStream(name, stage, strings.NewReader(content))
}

// SaveStream writes r to name under stage without loading it fully into
// memory, creating the stage directory if absent, using the same
// tmp-then-rename atomic-write pattern as SaveText.
func (f *Filer) SaveStream(name string, stage Stage, r io.Reader) error {
	dir := f.stageDir(stage)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperr.Internal("create stage dir", err)
	}

	dstPath := filepath.Join(dir, name)
	tmpPath := dstPath + ".tmp." + uuid.NewString()

	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return apperr.Internal("create temp file", err)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return apperr.Internal("write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return apperr.Internal("sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return apperr.Internal("close temp file", err)
	}

	if err := os.Rename(tmpPath, dstPath); err != nil {
		os.Remove(tmpPath)
		return apperr.Internal("rename temp file into place", err)
	}
	return nil
}

// Delete removes name from stage. A missing file is an error.
func (f *Filer) Delete(name string, stage Stage) error {
	if err := os.Remove(f.path(name, stage)); err != nil {
		return apperr.NotFound(fmt.Sprintf("%s/%s", stage, name))
	}
	return nil
}

// EnsureStages creates all four stage subdirectories, used at startup.
func (f *Filer) EnsureStages() error {
	for _, s := range []Stage{StageIncoming, StageWorking, StageProcessed, StageFailed} {
		if err := os.MkdirAll(f.stageDir(s), 0o755); err != nil {
			return apperr.Internal("create stage dir", err)
		}
	}
	return nil
}

// Path exposes the absolute path of name under stage, for callers (like the
// ASR client upload) that need to open the file directly.
func (f *Filer) Path(name string, stage Stage) string {
	return f.path(name, stage)
}
