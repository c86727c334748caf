package main

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spboyer/taskwatch/internal/tasks"
	"github.com/spboyer/taskwatch/internal/webapi"
	"github.com/spboyer/taskwatch/internal/webserver"
)

func startSimulator(t *testing.T, csvs ...string) string {
	t.Helper()
	srv := webserver.New(webserver.Config{
		Store:    webapi.NewMemoryStore(csvs...),
		Interval: time.Millisecond,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	return runCLIContext(t, context.Background(), stdin, args...)
}

func runCLIContext(t *testing.T, ctx context.Context, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("TASKWATCH_API_URL", "")
	t.Setenv("TASKWATCH_STREAM_URL", "")

	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestScrapeFollowsToCompletion(t *testing.T) {
	base := startSimulator(t)

	out, err := runCLI(t, "", "scrape", "https://example.com/list", "--server", base)
	require.NoError(t, err)

	assert.Contains(t, out, "> Connected to server...\n")
	assert.Contains(t, out, "> Fetching playlist...\n")
	assert.Equal(t, 1, strings.Count(out, "> Fetching playlist..."), "repeated frames are deduplicated")
	assert.Contains(t, out, "> Processing Completed!\n")
	assert.Contains(t, out, "Status: completed  Progress: 100%")
	assert.Contains(t, out, "CSV File:")
	assert.NotContains(t, out, "Connection closed.")
}

func TestSplitDetachPrintsTaskID(t *testing.T) {
	base := startSimulator(t)

	out, err := runCLI(t, "", "split", "--csv", "chan_metadata.csv", "--detach", "--server", base)
	require.NoError(t, err)

	id := strings.TrimSpace(out)
	assert.NotEmpty(t, id)
	assert.NotContains(t, id, "\n")
}

func TestSubmitValidationError(t *testing.T) {
	base := startSimulator(t)

	_, err := runCLI(t, "", "split", "--server", base)
	var verr *tasks.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "audio_folder", verr.Field)

	var failure *TaskFailureError
	assert.False(t, errors.As(err, &failure))
}

func TestTranscribeElevenLabsUsesEnvKey(t *testing.T) {
	base := startSimulator(t)
	t.Setenv(apiKeyEnv, "")

	_, err := runCLI(t, "", "transcribe", "--method", "elevenlabs", "--server", base)
	var verr *tasks.ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "api_key", verr.Field)

	t.Setenv(apiKeyEnv, "secret")
	out, err := runCLI(t, "", "transcribe", "--method", "elevenlabs", "-o", "voices.csv", "--server", base)
	require.NoError(t, err)
	assert.Contains(t, out, "Output CSV: voices.csv")
	assert.Contains(t, out, "Method:     elevenlabs")
}

func TestWatchUnknownTaskFails(t *testing.T) {
	base := startSimulator(t)

	out, err := runCLI(t, "", "watch", "missing", "--server", base)
	var failure *TaskFailureError
	require.True(t, errors.As(err, &failure), "got %v", err)
	assert.Equal(t, "missing", failure.TaskID)
	assert.Contains(t, out, "> Error: task missing not found\n")
	assert.Contains(t, out, "> Connection closed.\n")
	assert.Contains(t, out, "Status: error")
}

func TestWatchHonoursExplicitCloseOnError(t *testing.T) {
	base := startSimulator(t)
	const hold = 300 * time.Millisecond
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), hold)
	defer cancel()

	out, err := runCLIContext(t, ctx, "", "watch", "missing", "--close-on-error=false", "--server", base)
	elapsed := time.Since(start)

	var failure *TaskFailureError
	require.True(t, errors.As(err, &failure), "got %v", err)
	assert.GreaterOrEqual(t, elapsed, hold, "stream stays open after the error until the command is interrupted")
	assert.Contains(t, out, "> Error: task missing not found\n")
	assert.Contains(t, out, "> Connection closed.\n")
}

func TestCloseOnErrorResolution(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		name     string
		setting  *bool
		live     bool
		expected bool
	}{
		{"unset plain", nil, false, true},
		{"unset live", nil, true, false},
		{"false plain", &no, false, false},
		{"true live", &yes, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &app{closeOnError: tt.setting}
			assert.Equal(t, tt.expected, a.closeOnErrorFor(tt.live))
		})
	}
}

func TestWatchSeveralTasksPrefixesLines(t *testing.T) {
	base := startSimulator(t)
	ids := make([]string, 0, 2)
	for _, folder := range []string{"a", "b"} {
		out, err := runCLI(t, "", "split", "--audio-folder", folder, "-d", "--server", base)
		require.NoError(t, err)
		ids = append(ids, strings.TrimSpace(out))
	}

	out, err := runCLI(t, "", append([]string{"watch", "--server", base}, ids...)...)
	require.NoError(t, err)
	for _, id := range ids {
		assert.Contains(t, out, "["+id+"] > Processing Completed!")
		assert.Contains(t, out, "["+id+"] Status: completed")
	}
}

func TestWatchDialFailureIsNotTaskFailure(t *testing.T) {
	ts := httptest.NewServer(nil)
	dead := ts.URL
	ts.Close()

	_, err := runCLI(t, "", "watch", "t1", "--server", dead)
	require.Error(t, err)
	var failure *TaskFailureError
	assert.False(t, errors.As(err, &failure), "dial failure maps to a transport error, got %v", err)
}

func TestCSVs(t *testing.T) {
	base := startSimulator(t, "one_metadata.csv", "two_metadata.csv")

	out, err := runCLI(t, "", "csvs", "--server", base)
	require.NoError(t, err)
	assert.Equal(t, "1  one_metadata.csv\n2  two_metadata.csv\n", out)
}

func TestCSVLinesTruncates(t *testing.T) {
	names := make([]string, 10)
	for i := range names {
		names[i] = "a_very_long_channel_name_metadata.csv"
	}
	lines := csvLines(names, 20)
	assert.Equal(t, " 1  a_very_long_cha…", lines[0])
	assert.Equal(t, "10  a_very_long_cha…", lines[9])
}

func TestUploadFollowsTask(t *testing.T) {
	base := startSimulator(t)
	path := filepath.Join(t.TempDir(), "clip.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF....WAVE"), 0o644))

	out, err := runCLI(t, "", "upload", path, "--server", base)
	require.NoError(t, err)
	assert.Contains(t, out, "> Processing Completed!")
	assert.Contains(t, out, "File:")
	assert.Contains(t, out, "clip.wav")
}

func TestNewRejectsUnknownKind(t *testing.T) {
	base := startSimulator(t)

	_, err := runCLI(t, "", "new", "bake", "--server", base)
	assert.EqualError(t, err, `unknown task kind "bake"`)
}

func TestTraceRecordedAndViewed(t *testing.T) {
	base := startSimulator(t)
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile(".taskwatch.yaml", []byte("trace:\n  dir: traces\n  compress: true\n"), 0o644))

	_, err := runCLI(t, "", "scrape", "https://example.com/list", "--trace", "--server", base)
	require.NoError(t, err)

	out, err := runCLI(t, "", "trace", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "-trace.jsonl.zst")

	matches, err := filepath.Glob(filepath.Join("traces", "*-trace.jsonl.zst"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	out, err = runCLI(t, "", "trace", "view", matches[0])
	require.NoError(t, err)
	assert.Contains(t, out, "TASK TIMELINE")
	assert.Contains(t, out, "scrape")
}

func TestTraceListEmpty(t *testing.T) {
	out, err := runCLI(t, "", "trace", "list", "--dir", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "No traces found.\n", out)
}

func TestConfigFileServerURL(t *testing.T) {
	base := startSimulator(t, "cfg_metadata.csv")
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile(".taskwatch.yaml", []byte("server:\n  url: "+base+"\n"), 0o644))

	out, err := runCLI(t, "", "csvs")
	require.NoError(t, err)
	assert.Contains(t, out, "cfg_metadata.csv")
}
