package tasks

import (
	"fmt"
	"strings"
)

// Kind names the executor job a request creates.
type Kind string

const (
	KindScrape     Kind = "scrape"
	KindSplit      Kind = "split"
	KindTranscribe Kind = "transcribe"
	// KindUpload marks tasks created by a file upload rather than a form.
	KindUpload Kind = "upload"
)

// Kinds lists the kinds that can be created from a request, in display order.
var Kinds = []Kind{KindScrape, KindSplit, KindTranscribe}

// SplittingMethod selects how a folder of audio is cut into clips.
type SplittingMethod string

const (
	SplitVAD      SplittingMethod = "vad"
	SplitSemantic SplittingMethod = "semantic"
)

// TranscribeMethod selects the transcription backend.
type TranscribeMethod string

const (
	TranscribeLocal      TranscribeMethod = "local"
	TranscribeElevenLabs TranscribeMethod = "elevenlabs"
)

// DefaultOutputCSV is the transcribe output name used when none is given.
const DefaultOutputCSV = "transcription.csv"

// ValidationError rejects a request before it reaches the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Request is a creation request for one task kind. Payload validates the
// request and returns the JSON body to post.
type Request interface {
	Kind() Kind
	Payload() (any, error)
}

// ScrapeRequest downloads the audio of a playlist or channel.
type ScrapeRequest struct {
	PlaylistURL string
	VoiceName   string
}

type scrapePayload struct {
	PlaylistURL string `json:"playlist_url"`
	VoiceName   string `json:"voice_name,omitempty"`
}

func (ScrapeRequest) Kind() Kind { return KindScrape }

func (r ScrapeRequest) Payload() (any, error) {
	u := strings.TrimSpace(r.PlaylistURL)
	if u == "" {
		return nil, invalid("playlist_url", "is required")
	}
	return scrapePayload{PlaylistURL: u, VoiceName: strings.TrimSpace(r.VoiceName)}, nil
}

// SplitRequest cuts audio into clips, either from a folder on the executor
// or from a CSV produced by a scrape. Exactly one source must be set.
type SplitRequest struct {
	AudioFolder string
	CSVFilename string
	Method      SplittingMethod
	// SilenceLen and MaxAudioLen are in milliseconds; zero leaves the
	// executor default.
	SilenceLen  int
	MaxAudioLen int
}

type splitPayload struct {
	AudioFolder     string          `json:"audio_folder,omitempty"`
	CSVFilename     string          `json:"csv_filename,omitempty"`
	SplittingMethod SplittingMethod `json:"splitting_method,omitempty"`
	SilenceLen      int             `json:"silence_len,omitempty"`
	MaxAudioLen     int             `json:"max_audio_len,omitempty"`
}

func (SplitRequest) Kind() Kind { return KindSplit }

func (r SplitRequest) Payload() (any, error) {
	folder := strings.TrimSpace(r.AudioFolder)
	csv := strings.TrimSpace(r.CSVFilename)

	switch {
	case folder == "" && csv == "":
		return nil, invalid("audio_folder", "an audio folder or a csv filename is required")
	case folder != "" && csv != "":
		return nil, invalid("audio_folder", "set either an audio folder or a csv filename, not both")
	}
	if r.SilenceLen < 0 {
		return nil, invalid("silence_len", "must not be negative")
	}
	if r.MaxAudioLen < 0 {
		return nil, invalid("max_audio_len", "must not be negative")
	}

	p := splitPayload{
		AudioFolder: folder,
		CSVFilename: csv,
		SilenceLen:  r.SilenceLen,
		MaxAudioLen: r.MaxAudioLen,
	}

	if folder != "" {
		switch r.Method {
		case "":
			p.SplittingMethod = SplitVAD
		case SplitVAD, SplitSemantic:
			p.SplittingMethod = r.Method
		default:
			return nil, invalid("splitting_method", "must be %q or %q, got %q", SplitVAD, SplitSemantic, r.Method)
		}
		return p, nil
	}

	// Clips listed in a csv are always cut by voice activity.
	if r.Method != "" && r.Method != SplitVAD {
		return nil, invalid("splitting_method", "%q splitting needs an audio folder", r.Method)
	}
	return p, nil
}

// TranscribeRequest transcribes previously split clips into a CSV.
type TranscribeRequest struct {
	OutputCSVName string
	Method        TranscribeMethod
	APIKey        string
	AudioFolder   string
}

type transcribePayload struct {
	OutputCSVName string           `json:"output_csv_name"`
	Method        TranscribeMethod `json:"method"`
	APIKey        string           `json:"api_key,omitempty"`
	AudioFolder   string           `json:"audio_folder,omitempty"`
}

func (TranscribeRequest) Kind() Kind { return KindTranscribe }

func (r TranscribeRequest) Payload() (any, error) {
	name := strings.TrimSpace(r.OutputCSVName)
	if name == "" {
		return nil, invalid("output_csv_name", "is required")
	}

	p := transcribePayload{
		OutputCSVName: name,
		Method:        r.Method,
		AudioFolder:   strings.TrimSpace(r.AudioFolder),
	}

	switch r.Method {
	case TranscribeLocal:
	case TranscribeElevenLabs:
		key := strings.TrimSpace(r.APIKey)
		if key == "" {
			return nil, invalid("api_key", "is required for %s transcription", TranscribeElevenLabs)
		}
		p.APIKey = key
	default:
		return nil, invalid("method", "must be %q or %q, got %q", TranscribeLocal, TranscribeElevenLabs, r.Method)
	}
	return p, nil
}
