package wizard

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/spboyer/taskwatch/internal/tasks"
)

// Split sources offered by the form.
const (
	SourceFolder = "folder"
	SourceCSV    = "csv"
)

// Options seeds the form.
type Options struct {
	// Kind skips the kind selection when set.
	Kind tasks.Kind
	// CSVs are the executor's csv files, offered as split sources.
	CSVs []string
	// APIKey is used for elevenlabs transcription instead of prompting.
	APIKey string
	// Defaults for the method selects.
	SplitMethod      tasks.SplittingMethod
	TranscribeMethod tasks.TranscribeMethod
	OutputCSV        string
}

// Answers holds all fields collected during the interactive form.
type Answers struct {
	Kind tasks.Kind

	PlaylistURL string
	VoiceName   string

	Source      string
	AudioFolder string
	CSVFilename string
	SplitMethod string
	SilenceLen  string
	MaxAudioLen string

	OutputCSVName    string
	TranscribeMethod string
	APIKey           string
}

// Request converts the answers into a validated task request.
func (a Answers) Request() (tasks.Request, error) {
	var req tasks.Request
	switch a.Kind {
	case tasks.KindScrape:
		req = tasks.ScrapeRequest{PlaylistURL: a.PlaylistURL, VoiceName: a.VoiceName}
	case tasks.KindSplit:
		silence, err := optionalInt("silence_len", a.SilenceLen)
		if err != nil {
			return nil, err
		}
		maxLen, err := optionalInt("max_audio_len", a.MaxAudioLen)
		if err != nil {
			return nil, err
		}
		r := tasks.SplitRequest{SilenceLen: silence, MaxAudioLen: maxLen}
		if a.Source == SourceCSV {
			r.CSVFilename = a.CSVFilename
		} else {
			r.AudioFolder = a.AudioFolder
			r.Method = tasks.SplittingMethod(a.SplitMethod)
		}
		req = r
	case tasks.KindTranscribe:
		req = tasks.TranscribeRequest{
			OutputCSVName: a.OutputCSVName,
			Method:        tasks.TranscribeMethod(a.TranscribeMethod),
			APIKey:        a.APIKey,
			AudioFolder:   a.AudioFolder,
		}
	default:
		return nil, &tasks.ValidationError{Field: "kind", Message: fmt.Sprintf("unknown task kind %q", a.Kind)}
	}

	if _, err := req.Payload(); err != nil {
		return nil, err
	}
	return req, nil
}

// Run asks for a task kind and its fields, and returns the request to
// submit. Non-terminal input gets huh's accessible line-based prompts.
func Run(in io.Reader, out io.Writer, opts Options) (tasks.Request, error) {
	a := Answers{
		Kind:             opts.Kind,
		Source:           SourceFolder,
		SplitMethod:      string(orDefault(opts.SplitMethod, tasks.SplitVAD)),
		OutputCSVName:    orDefault(opts.OutputCSV, tasks.DefaultOutputCSV),
		TranscribeMethod: string(orDefault(opts.TranscribeMethod, tasks.TranscribeLocal)),
		APIKey:           opts.APIKey,
	}
	accessible := !isTerminal(in)

	run := func(groups ...*huh.Group) error {
		form := huh.NewForm(groups...).WithInput(in).WithOutput(out).WithAccessible(accessible)
		if err := form.Run(); err != nil {
			return fmt.Errorf("wizard failed: %w", err)
		}
		return nil
	}

	if a.Kind == "" {
		options := make([]huh.Option[tasks.Kind], 0, len(tasks.Kinds))
		for _, k := range tasks.Kinds {
			options = append(options, huh.NewOption(string(k), k))
		}
		a.Kind = tasks.KindScrape
		if err := run(huh.NewGroup(
			huh.NewSelect[tasks.Kind]().
				Title("Task").
				Description("What should the executor do?").
				Options(options...).
				Value(&a.Kind),
		)); err != nil {
			return nil, err
		}
	}

	var err error
	switch a.Kind {
	case tasks.KindScrape:
		err = run(scrapeGroup(&a))
	case tasks.KindSplit:
		if len(opts.CSVs) > 0 {
			a.CSVFilename = opts.CSVs[0]
			if err = run(huh.NewGroup(
				huh.NewSelect[string]().
					Title("Source").
					Options(
						huh.NewOption("audio folder", SourceFolder),
						huh.NewOption("csv from a scrape", SourceCSV),
					).
					Value(&a.Source),
			)); err != nil {
				return nil, err
			}
		}
		err = run(splitGroup(&a, opts.CSVs))
	case tasks.KindTranscribe:
		if err = run(transcribeGroup(&a)); err != nil {
			return nil, err
		}
		if a.TranscribeMethod == string(tasks.TranscribeElevenLabs) && strings.TrimSpace(a.APIKey) == "" {
			err = run(huh.NewGroup(
				huh.NewInput().
					Title("ElevenLabs API key").
					EchoMode(huh.EchoModePassword).
					Value(&a.APIKey).
					Validate(required("api key")),
			))
		}
	}
	if err != nil {
		return nil, err
	}

	return a.Request()
}

func scrapeGroup(a *Answers) *huh.Group {
	return huh.NewGroup(
		huh.NewInput().
			Title("Playlist URL").
			Description("A playlist or channel to download audio from").
			Placeholder("https://www.youtube.com/playlist?list=...").
			Value(&a.PlaylistURL).
			Validate(required("playlist url")),
		huh.NewInput().
			Title("Voice name").
			Description("Optional label for the downloaded voice").
			Value(&a.VoiceName),
	)
}

func splitGroup(a *Answers, csvs []string) *huh.Group {
	var fields []huh.Field
	if a.Source == SourceCSV {
		options := make([]huh.Option[string], 0, len(csvs))
		for _, c := range csvs {
			options = append(options, huh.NewOption(c, c))
		}
		fields = append(fields,
			huh.NewSelect[string]().
				Title("CSV file").
				Options(options...).
				Value(&a.CSVFilename),
		)
	} else {
		fields = append(fields,
			huh.NewInput().
				Title("Audio folder").
				Description("Folder on the executor holding the audio to split").
				Value(&a.AudioFolder).
				Validate(required("audio folder")),
			huh.NewSelect[string]().
				Title("Splitting method").
				Options(
					huh.NewOption("voice activity (vad)", string(tasks.SplitVAD)),
					huh.NewOption("semantic", string(tasks.SplitSemantic)),
				).
				Value(&a.SplitMethod),
		)
	}
	fields = append(fields,
		huh.NewInput().
			Title("Silence length (ms)").
			Description("Leave empty for the executor default").
			Value(&a.SilenceLen).
			Validate(nonNegativeInt),
		huh.NewInput().
			Title("Max clip length (ms)").
			Description("Leave empty for the executor default").
			Value(&a.MaxAudioLen).
			Validate(nonNegativeInt),
	)
	return huh.NewGroup(fields...)
}

func transcribeGroup(a *Answers) *huh.Group {
	return huh.NewGroup(
		huh.NewInput().
			Title("Output CSV name").
			Value(&a.OutputCSVName).
			Validate(required("output csv name")),
		huh.NewSelect[string]().
			Title("Method").
			Options(
				huh.NewOption("local", string(tasks.TranscribeLocal)),
				huh.NewOption("elevenlabs", string(tasks.TranscribeElevenLabs)),
			).
			Value(&a.TranscribeMethod),
		huh.NewInput().
			Title("Audio folder").
			Description("Optional; defaults to the split output").
			Value(&a.AudioFolder),
	)
}

func required(name string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func nonNegativeInt(s string) error {
	_, err := optionalInt("value", s)
	return err
}

func optionalInt(field, s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, &tasks.ValidationError{Field: field, Message: "must be a non-negative whole number"}
	}
	return n, nil
}

func orDefault[T ~string](v, def T) T {
	if v == "" {
		return def
	}
	return v
}

func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
