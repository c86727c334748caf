package webapi

import (
	"fmt"
	"path"
	"strings"
)

// storageDir mirrors the executor's on-disk layout in simulated results.
const storageDir = "storage"

// Script returns the frames streamed for t, in order. Every processing frame
// appears twice, the way a polling executor repeats unchanged progress.
func Script(t *Task) []Frame {
	frames := []Frame{{Status: "queued"}}

	steps := progressSteps(t)
	for i, msg := range steps {
		pct := float64(i) * 100 / float64(len(steps))
		f := Frame{Status: "processing", Detail: &FrameDetail{Percent: pct, Message: msg}}
		frames = append(frames, f, f)
	}

	if b, _ := t.Payload["simulate_error"].(bool); b {
		return append(frames, Frame{Status: "error", Message: fmt.Sprintf("simulated %s failure", t.Kind)})
	}
	return append(frames, Frame{Status: "completed", Result: resultFor(t)})
}

func progressSteps(t *Task) []string {
	switch t.Kind {
	case "scrape":
		return []string{"Fetching playlist...", "Downloading audio 1/2", "Downloading audio 2/2", "Writing metadata..."}
	case "split":
		if str(t.Payload, "splitting_method") == "semantic" {
			return []string{"Loading model...", "Processing clips...", "Finalizing..."}
		}
		return []string{"Detecting silence...", "Processing video 1/1", "Finalizing..."}
	case "transcribe":
		return []string{"Loading audio...", "Transcribing clips...", "Writing CSV..."}
	default:
		return []string{"Receiving file...", "Saving..."}
	}
}

func resultFor(t *Task) map[string]any {
	switch t.Kind {
	case "scrape":
		name := csvPrefix(t) + "_metadata.csv"
		return map[string]any{
			"status":       "success",
			"csv_filename": name,
			"csv_path":     path.Join(storageDir, "datasets_csv", name),
		}
	case "split":
		out := "output.csv"
		if csv := str(t.Payload, "csv_filename"); csv != "" {
			out = strings.TrimSuffix(csv, "_metadata.csv") + "_splitted.csv"
		}
		return map[string]any{
			"status":     "success",
			"output_csv": out,
			"audio_dir":  path.Join(storageDir, "audios", "splitted_audios"),
		}
	case "transcribe":
		return map[string]any{
			"status":     "success",
			"output_csv": str(t.Payload, "output_csv_name"),
			"method":     str(t.Payload, "method"),
		}
	default:
		name := str(t.Payload, "filename")
		return map[string]any{
			"filename":    name,
			"output_path": path.Join(storageDir, "uploads", name),
			"message":     "upload stored",
		}
	}
}

// csvPrefix derives a dataset name from the voice name or the playlist URL.
func csvPrefix(t *Task) string {
	if v := str(t.Payload, "voice_name"); v != "" {
		return sanitize(v)
	}
	u := strings.TrimRight(str(t.Payload, "playlist_url"), "/")
	if i := strings.LastIndexAny(u, "/=@"); i >= 0 {
		u = u[i+1:]
	}
	if u == "" {
		return "dataset"
	}
	return sanitize(u)
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
