package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// TraceFile represents a trace file on disk.
type TraceFile struct {
	Path       string
	Name       string
	Size       int64
	ModTime    time.Time
	NumEvents  int
	Compressed bool
}

func isTraceName(name string) bool {
	return strings.HasSuffix(name, "-trace.jsonl") || strings.HasSuffix(name, "-trace.jsonl"+CompressedSuffix)
}

// ListTraces finds trace files in dir, newest first.
func ListTraces(dir string) ([]TraceFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading trace directory: %w", err)
	}

	var files []TraceFile
	for _, e := range entries {
		if e.IsDir() || !isTraceName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}

		path := filepath.Join(dir, e.Name())
		n, _ := countLines(path) //nolint:errcheck
		files = append(files, TraceFile{
			Path:       path,
			Name:       e.Name(),
			Size:       info.Size(),
			ModTime:    info.ModTime(),
			NumEvents:  n,
			Compressed: strings.HasSuffix(e.Name(), CompressedSuffix),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})

	return files, nil
}

// openTrace returns a reader over the NDJSON content of path, decompressing
// ".zst" files transparently.
func openTrace(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, CompressedSuffix) {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close() //nolint:errcheck
		return nil, err
	}
	return &zstdReadCloser{dec: dec, f: f}, nil
}

type zstdReadCloser struct {
	dec *zstd.Decoder
	f   *os.File
}

func (z *zstdReadCloser) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.f.Close()
}

func countLines(path string) (int, error) {
	r, err := openTrace(path)
	if err != nil {
		return 0, err
	}
	defer r.Close() //nolint:errcheck
	n := 0
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		n++
	}
	return n, scanner.Err()
}

// ReadEvents parses all events from a trace file.
func ReadEvents(path string) ([]Event, error) {
	r, err := openTrace(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}
	defer r.Close() //nolint:errcheck

	var events []Event
	scanner := bufio.NewScanner(r)
	// Raw frames can be long.
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue // skip malformed lines
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading trace file: %w", err)
	}
	return events, nil
}

// RenderTimeline writes a human-readable trace timeline to w.
//
//nolint:errcheck // display-only writes; errors are not actionable
func RenderTimeline(w io.Writer, events []Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No events found.")
		return
	}

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w, " TASK TIMELINE")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	start := events[0].Timestamp
	for _, ev := range events {
		ts := formatDuration(ev.Timestamp.Sub(start))

		switch ev.Type {
		case EventTaskSubmitted:
			id, _ := ev.Data["task_id"].(string) //nolint:errcheck
			kind, _ := ev.Data["kind"].(string)  //nolint:errcheck
			fmt.Fprintf(w, "[%s] 🚀 Submitted %s task  id=%s\n", ts, kind, id)

		case EventStreamOpen:
			url, _ := ev.Data["url"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] 🔌 Stream open  %s\n", ts, url)

		case EventFrame:
			status, _ := ev.Data["status"].(string) //nolint:errcheck
			line, _ := ev.Data["line"].(string)     //nolint:errcheck
			if p, ok := ev.Data["percent"]; ok {
				fmt.Fprintf(w, "[%s] ▶  %-12s %5.1f%%  %s\n", ts, status, jsonFloat(p), line)
			} else {
				fmt.Fprintf(w, "[%s] ▶  %-12s         %s\n", ts, status, line)
			}

		case EventDecodeError:
			msg, _ := ev.Data["message"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] ⚠  Dropped frame: %s\n", ts, msg)

		case EventStreamClosed:
			reason, _ := ev.Data["reason"].(string) //nolint:errcheck
			status, _ := ev.Data["status"].(string) //nolint:errcheck
			percent := jsonFloat(ev.Data["percent"])
			lines := jsonNumber(ev.Data["lines"])
			icon := "✓"
			if status != "completed" {
				icon = "✗"
			}
			fmt.Fprintf(w, "[%s] %s  Stream closed (%s)  status=%s  %.0f%%  %d lines\n",
				ts, icon, reason, status, percent, lines)

		case EventError:
			msg, _ := ev.Data["message"].(string) //nolint:errcheck
			fmt.Fprintf(w, "[%s] ❌ Error: %s\n", ts, msg)

		default:
			fmt.Fprintf(w, "[%s] %s %v\n", ts, ev.Type, ev.Data)
		}
	}
	fmt.Fprintln(w)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%6dms", d.Milliseconds())
	}
	return fmt.Sprintf("%6.1fs", d.Seconds())
}

// jsonNumber extracts a number from a JSON-decoded interface{} (float64 or json.Number).
func jsonNumber(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case json.Number:
		i, _ := n.Int64() //nolint:errcheck
		return int(i)
	}
	return 0
}

func jsonFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64() //nolint:errcheck
		return f
	}
	return 0
}
