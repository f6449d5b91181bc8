package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/codebuildervaibhav/video-enhancer/internal/types"
)

// LocalStorage downloads finished results to the local filesystem
type LocalStorage struct {
	outputDir  string
	httpClient *http.Client
}

// NewLocalStorage creates a new local storage handler
func NewLocalStorage(outputDir string, httpClient *http.Client) *LocalStorage {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &LocalStorage{
		outputDir:  outputDir,
		httpClient: httpClient,
	}
}

// OutputDir returns the root directory results are written to
func (ls *LocalStorage) OutputDir() string {
	return ls.outputDir
}

// SaveResult fetches job.ResultURL into outputs/YYYY/MM/DD/ and writes a
// _meta.json sidecar next to it. It returns the video path.
func (ls *LocalStorage) SaveResult(ctx context.Context, job types.Job) (string, error) {
	if job.ResultURL == "" {
		return "", fmt.Errorf("job %s has no result URL", job.ID)
	}

	now := time.Now()
	dateDir := filepath.Join(ls.outputDir,
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()))

	if err := os.MkdirAll(dateDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create date directory: %w", err)
	}

	// 20250123_143022_clip_enhanced.mp4
	timestamp := now.Format("20060102_150405")
	base := strings.TrimSuffix(sanitizeFilename(job.FileName), filepath.Ext(job.FileName))
	ext := resultExtension(job.ResultURL)
	videoPath := filepath.Join(dateDir, fmt.Sprintf("%s_%s_enhanced%s", timestamp, base, ext))
	metaPath := strings.TrimSuffix(videoPath, ext) + "_meta.json"

	size, err := ls.download(ctx, job.ResultURL, videoPath)
	if err != nil {
		return "", err
	}

	metadata := map[string]interface{}{
		"job_id":        job.ID,
		"source_name":   job.FileName,
		"source_type":   job.FileType,
		"source_bytes":  job.FileSize,
		"model_used":    job.Model,
		"result_url":    job.ResultURL,
		"result_bytes":  size,
		"local_path":    videoPath,
		"created_at":    job.CreatedAt,
		"finished_at":   job.FinishedAt,
		"downloaded_at": now,
	}

	metaJSON, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	if err := os.WriteFile(metaPath, metaJSON, 0644); err != nil {
		return "", fmt.Errorf("failed to save metadata: %w", err)
	}

	return videoPath, nil
}

// download streams url into dst via a temporary file so a failed transfer
// never leaves a truncated video behind
func (ls *LocalStorage) download(ctx context.Context, rawURL, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("invalid result URL %q: %w", rawURL, err)
	}

	resp, err := ls.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to download result: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("failed to download result: status %d", resp.StatusCode)
	}

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("failed to create result file: %w", err)
	}

	n, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to write result file: %w", err)
	}

	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to finalize result file: %w", err)
	}
	return n, nil
}

// resultExtension picks the file extension from the result URL path
func resultExtension(rawURL string) string {
	ext := ".mp4"
	if u, err := url.Parse(rawURL); err == nil {
		if e := path.Ext(u.Path); e != "" && len(e) <= 5 {
			ext = strings.ToLower(e)
		}
	}
	return ext
}

// sanitizeFilename strips path components and characters that are invalid on common filesystems
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	result := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 {
			return '_'
		}
		return r
	}, name)

	if result == "" || result == "." || result == ".." {
		result = "video"
	}
	if len(result) > 100 {
		result = result[:100]
	}
	return result
}
