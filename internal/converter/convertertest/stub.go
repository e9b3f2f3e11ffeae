// Package convertertest provides shell-script stand-ins for the converter executable.
package convertertest

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// header parses the converter argument vector into $out, $ext and $src and
// records the raw arguments next to the script.
const header = `#!/bin/sh
printf '%s\n' "$@" > "$0.args"
out=""
ext="mp4"
while [ $# -gt 0 ]; do
  case "$1" in
    -o) shift; out="$1" ;;
    -x) ext="mp3" ;;
    --) shift; break ;;
  esac
  shift
done
src="$1"
target=$(printf '%s' "$out" | sed "s/%(ext)s/$ext/")
`

// Script bodies
const (
	// Success writes "converted:<source>" to the requested output
	Success = `echo "[download] Destination: $target" >&2
if [ "$out" = "-" ]; then
  printf 'converted:%s' "$src"
else
  printf 'converted:%s' "$src" > "$target"
fi
`
	// Failure reports an error and exits 1
	Failure = `echo "[youtube] $src: Downloading webpage" >&2
echo "ERROR: Video unavailable" >&2
exit 1
`
	// NoOutput exits 0 without producing anything
	NoOutput = `echo "[download] nothing to do" >&2
exit 0
`
	// Hang never finishes on its own
	Hang = `exec sleep 60
`
)

// Endless writes its pid to pidFile, then streams forever
func Endless(pidFile string) string {
	return fmt.Sprintf("echo $$ > %q\nexec yes converted\n", pidFile)
}

// PartialFailure streams size bytes to stdout, then fails
func PartialFailure(size int) string {
	return fmt.Sprintf("head -c %d /dev/zero\necho \"ERROR: connection reset\" >&2\nexit 1\n", size)
}

// SpawnsChild starts a long-running child, records its pid in pidFile and waits on it
func SpawnsChild(pidFile string) string {
	return fmt.Sprintf("sleep 60 &\necho $! > %q\nwait\n", pidFile)
}

// Write installs an executable stub running body and returns its path.
// Tests are skipped where /bin/sh is unavailable.
func Write(t testing.TB, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("converter stubs need /bin/sh")
	}

	path := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(path, []byte(header+body), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return path
}

// Args returns the argument vector of the last stub invocation
func Args(t testing.TB, stubPath string) []string {
	t.Helper()
	raw, err := os.ReadFile(stubPath + ".args")
	if err != nil {
		t.Fatalf("read recorded args: %v", err)
	}
	return strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
}
