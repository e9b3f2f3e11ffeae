package domain

import (
	"sort"
	"strings"
)

// OutputKind describes one supported conversion target.
// Adding a kind is a change to the kinds table below, nothing else.
type OutputKind struct {
	Name      string   `json:"name"`
	Aliases   []string `json:"aliases,omitempty"`
	Args      []string `json:"-"`
	MIMEType  string   `json:"mime_type"`
	Extension string   `json:"extension"`
	Filename  string   `json:"filename"`
}

// Output kind names
const (
	KindAudio         = "audio"
	KindVideoStandard = "video-standard"
	KindVideoHigh     = "video-high"
)

var kinds = map[string]OutputKind{
	KindAudio: {
		Name:      KindAudio,
		Aliases:   []string{"mp3"},
		Args:      []string{"-x", "--audio-format", "mp3"},
		MIMEType:  "audio/mpeg",
		Extension: "mp3",
		Filename:  "audio.mp3",
	},
	KindVideoStandard: {
		Name:      KindVideoStandard,
		Aliases:   []string{"mp4"},
		Args:      []string{"-f", "18"},
		MIMEType:  "video/mp4",
		Extension: "mp4",
		Filename:  "video_360p.mp4",
	},
	KindVideoHigh: {
		Name:      KindVideoHigh,
		Aliases:   []string{"mp4-hd"},
		Args:      []string{"-f", "22"},
		MIMEType:  "video/mp4",
		Extension: "mp4",
		Filename:  "video_720p.mp4",
	},
}

// aliases maps legacy type values onto kind names
var aliases = buildAliases()

func buildAliases() map[string]string {
	out := make(map[string]string)
	for name, kind := range kinds {
		for _, alias := range kind.Aliases {
			out[alias] = name
		}
	}
	return out
}

// LookupKind resolves a kind by name or alias. Matching ignores case and surrounding space.
func LookupKind(name string) (OutputKind, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if target, ok := aliases[key]; ok {
		key = target
	}
	kind, ok := kinds[key]
	if !ok {
		return OutputKind{}, false
	}
	return kind.clone(), true
}

// Kinds returns every supported kind sorted by name.
func Kinds() []OutputKind {
	out := make([]OutputKind, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, kind.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// KindNames returns the sorted list of kind names.
func KindNames() []string {
	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// clone keeps callers from mutating the shared table through slice fields
func (k OutputKind) clone() OutputKind {
	k.Args = append([]string(nil), k.Args...)
	k.Aliases = append([]string(nil), k.Aliases...)
	return k
}
