package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKind(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantOK       bool
		wantKind     string
		wantMIME     string
		wantFilename string
	}{
		{
			name:         "audio",
			input:        "audio",
			wantOK:       true,
			wantKind:     KindAudio,
			wantMIME:     "audio/mpeg",
			wantFilename: "audio.mp3",
		},
		{
			name:         "legacy mp3 alias",
			input:        "mp3",
			wantOK:       true,
			wantKind:     KindAudio,
			wantMIME:     "audio/mpeg",
			wantFilename: "audio.mp3",
		},
		{
			name:         "video standard",
			input:        "video-standard",
			wantOK:       true,
			wantKind:     KindVideoStandard,
			wantMIME:     "video/mp4",
			wantFilename: "video_360p.mp4",
		},
		{
			name:         "legacy mp4 alias with padding and case",
			input:        "  MP4 ",
			wantOK:       true,
			wantKind:     KindVideoStandard,
			wantMIME:     "video/mp4",
			wantFilename: "video_360p.mp4",
		},
		{
			name:         "video high",
			input:        "video-high",
			wantOK:       true,
			wantKind:     KindVideoHigh,
			wantMIME:     "video/mp4",
			wantFilename: "video_720p.mp4",
		},
		{
			name:         "legacy mp4-hd alias",
			input:        "mp4-hd",
			wantOK:       true,
			wantKind:     KindVideoHigh,
			wantMIME:     "video/mp4",
			wantFilename: "video_720p.mp4",
		},
		{
			name:   "unknown",
			input:  "flac",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, ok := LookupKind(tt.input)
			require.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantKind, kind.Name)
			assert.Equal(t, tt.wantMIME, kind.MIMEType)
			assert.Equal(t, tt.wantFilename, kind.Filename)
			assert.NotEmpty(t, kind.Args)
		})
	}
}

func TestLookupKind_StableAcrossCalls(t *testing.T) {
	for _, name := range KindNames() {
		first, ok := LookupKind(name)
		require.True(t, ok)

		// Mutating a returned copy must not leak into the table.
		first.Args[0] = "--mutated"

		second, ok := LookupKind(name)
		require.True(t, ok)
		assert.NotEqual(t, "--mutated", second.Args[0])
		assert.Equal(t, first.MIMEType, second.MIMEType)
		assert.Equal(t, first.Filename, second.Filename)
	}
}

func TestKinds_Sorted(t *testing.T) {
	list := Kinds()
	require.Len(t, list, 3)
	assert.Equal(t, []string{KindAudio, KindVideoHigh, KindVideoStandard}, KindNames())
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].Name, list[i].Name)
	}
}
