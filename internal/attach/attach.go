// Package attach finds file markers in command output. A command prints
// [file:/path/to/report.pdf] and the host delivers that file next to the
// text output, with the marker removed.
package attach

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Kind selects how a file is delivered.
type Kind int

const (
	Document Kind = iota
	Photo
	Video
	Audio
)

func (k Kind) String() string {
	switch k {
	case Photo:
		return "photo"
	case Video:
		return "video"
	case Audio:
		return "audio"
	default:
		return "document"
	}
}

// File is one referenced file that exists on disk.
type File struct {
	Path string
	Kind Kind
}

// Result is command output with its file markers resolved.
type Result struct {
	Text    string   // output without markers
	Files   []File   // in order of appearance, duplicates dropped
	Missing []string // referenced paths that do not exist
}

var (
	markerPattern = regexp.MustCompile(`\[file:([^\]\n]+)\]`)
	blankRun      = regexp.MustCompile(`\n{3,}`)
)

var kinds = map[string]Kind{
	".jpg": Photo, ".jpeg": Photo, ".png": Photo, ".gif": Photo, ".webp": Photo,
	".mp4": Video, ".mov": Video, ".mkv": Video, ".webm": Video, ".avi": Video,
	".mp3": Audio, ".ogg": Audio, ".wav": Audio, ".m4a": Audio, ".flac": Audio,
}

// KindOf classifies a file by extension.
func KindOf(path string) Kind {
	return kinds[strings.ToLower(filepath.Ext(path))]
}

// Extract strips markers from output. Relative paths are resolved against
// workdir when it is set.
func Extract(output, workdir string) Result {
	if !strings.Contains(output, "[file:") {
		return Result{Text: output}
	}

	var res Result
	seen := make(map[string]bool)

	text := markerPattern.ReplaceAllStringFunc(output, func(marker string) string {
		path := strings.TrimSpace(markerPattern.FindStringSubmatch(marker)[1])
		if path == "" {
			return ""
		}
		if workdir != "" && !filepath.IsAbs(path) {
			path = filepath.Join(workdir, path)
		}
		if seen[path] {
			return ""
		}
		seen[path] = true

		if info, err := os.Stat(path); err != nil || info.IsDir() {
			res.Missing = append(res.Missing, path)
			return ""
		}
		res.Files = append(res.Files, File{Path: path, Kind: KindOf(path)})
		return ""
	})

	res.Text = tidy(text)
	return res
}

// Batches groups files that can travel in one album: photos and videos
// together, audio together, documents together. No batch exceeds size.
func Batches(files []File, size int) [][]File {
	if size <= 0 {
		size = 10
	}

	var visual, audio, docs []File
	for _, f := range files {
		switch f.Kind {
		case Photo, Video:
			visual = append(visual, f)
		case Audio:
			audio = append(audio, f)
		default:
			docs = append(docs, f)
		}
	}

	var out [][]File
	for _, group := range [][]File{visual, audio, docs} {
		for len(group) > 0 {
			n := min(size, len(group))
			out = append(out, group[:n:n])
			group = group[n:]
		}
	}
	return out
}

// tidy drops trailing blanks left behind by removed markers.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	s = blankRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(s)
}
