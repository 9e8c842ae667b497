package retention

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentdesk/agentdesk/pkg/models"
	"github.com/rs/zerolog/log"
)

// LocalFileArchiver writes expired executions as JSONL files to a
// local directory, one file per retention cycle:
//
//	{basePath}/executions/2026-08-30T15-04-05Z.jsonl[.gz]
type LocalFileArchiver struct {
	basePath string
	compress bool
}

// NewLocalFileArchiver creates a file-based archiver. An empty
// basePath defaults to "~/.agentdesk/archive".
func NewLocalFileArchiver(basePath string, compress bool) *LocalFileArchiver {
	if basePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			basePath = "/tmp/agentdesk/archive"
		} else {
			basePath = filepath.Join(home, ".agentdesk", "archive")
		}
	}
	return &LocalFileArchiver{basePath: basePath, compress: compress}
}

func (a *LocalFileArchiver) Kind() string { return "local" }

// ArchiveExecutions writes the batch as one JSONL file and returns its
// path.
func (a *LocalFileArchiver) ArchiveExecutions(_ context.Context, executions []models.Execution) (string, error) {
	dir := filepath.Join(a.basePath, "executions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	filename := time.Now().UTC().Format("2006-01-02T15-04-05Z") + ".jsonl"
	if a.compress {
		filename += ".gz"
	}
	fpath := filepath.Join(dir, filename)

	f, err := os.Create(fpath)
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	if a.compress {
		gw := gzip.NewWriter(f)
		defer gw.Close()
		enc = json.NewEncoder(gw)
	}

	for _, ex := range executions {
		if err := enc.Encode(ex); err != nil {
			return "", fmt.Errorf("encode execution %s: %w", ex.ID, err)
		}
	}

	log.Debug().
		Str("path", fpath).
		Int("count", len(executions)).
		Msg("Archived executions to local file")

	return fpath, nil
}

// HealthCheck verifies the base path is writable.
func (a *LocalFileArchiver) HealthCheck(_ context.Context) error {
	if err := os.MkdirAll(a.basePath, 0o755); err != nil {
		return fmt.Errorf("archive path not writable: %w", err)
	}
	testFile := filepath.Join(a.basePath, ".healthcheck")
	if err := os.WriteFile(testFile, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("archive path not writable: %w", err)
	}
	os.Remove(testFile)
	return nil
}

var _ Archiver = (*LocalFileArchiver)(nil)
