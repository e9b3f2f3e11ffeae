package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/cuongbtq/media-fetcher/internal/converter/convertertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig points the converter at an existing stub so nothing is downloaded
func writeConfig(t *testing.T, exePath string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := fmt.Sprintf(`converter:
  executable_path: %s
  download_url: http://127.0.0.1:1/yt-dlp
  min_size_bytes: 1
  work_dir: %s
`, exePath, t.TempDir())
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestKindsCommand(t *testing.T) {
	out, err := execute(t, "kinds", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Contains(t, out, "audio")
	assert.Contains(t, out, "video-standard")
	assert.Contains(t, out, "video_720p.mp4")
	assert.Contains(t, out, "mp3")
}

func TestConvertCommand(t *testing.T) {
	cfgPath := writeConfig(t, convertertest.Write(t, convertertest.Success))
	target := filepath.Join(t.TempDir(), "out.mp3")

	out, err := execute(t, "convert", "https://example/abc", "--config", cfgPath, "--kind", "mp3", "--output", target)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved "+target)

	raw, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "converted:https://example/abc", string(raw))
}

func TestConvertCommand_DirectMode(t *testing.T) {
	cfgPath := writeConfig(t, convertertest.Write(t, convertertest.Success))
	target := filepath.Join(t.TempDir(), "clip.mp4")

	_, err := execute(t, "convert", "https://example/abc", "--config", cfgPath, "--kind", "video-standard", "--mode", "direct", "-o", target)
	require.NoError(t, err)

	raw, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "converted:https://example/abc", string(raw))
}

func TestConvertCommand_FailureLeavesNothing(t *testing.T) {
	cfgPath := writeConfig(t, convertertest.Write(t, convertertest.Failure))
	dir := t.TempDir()
	target := filepath.Join(dir, "out.mp3")

	_, err := execute(t, "convert", "https://example/abc", "--config", cfgPath, "-o", target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Video unavailable")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestConvertCommand_RejectsBadInput(t *testing.T) {
	cfgPath := writeConfig(t, convertertest.Write(t, convertertest.Success))

	_, err := execute(t, "convert", "https://example/abc", "--config", cfgPath, "--kind", "gif")
	assert.Error(t, err)

	_, err = execute(t, "convert", "https://example/abc", "--config", cfgPath, "--mode", "pipe")
	assert.ErrorContains(t, err, "unknown delivery mode")
}

func TestProvisionCommand_Check(t *testing.T) {
	exe := convertertest.Write(t, convertertest.Success)

	out, err := execute(t, "provision", "--check", "--config", writeConfig(t, exe))
	require.NoError(t, err)
	assert.Contains(t, out, exe)

	_, err = execute(t, "provision", "--check", "--config", writeConfig(t, filepath.Join(t.TempDir(), "absent")))
	assert.ErrorContains(t, err, "converter executable not found")
}

func TestRootCommand_MissingConfig(t *testing.T) {
	_, err := execute(t, "provision", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
