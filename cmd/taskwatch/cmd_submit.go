package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spboyer/taskwatch/internal/tasks"
)

// apiKeyEnv supplies the elevenlabs key when --api-key is empty.
const apiKeyEnv = "ELEVENLABS_API_KEY"

func newScrapeCommand(opts *rootOptions) *cobra.Command {
	var (
		voiceName string
		detach    bool
	)

	cmd := &cobra.Command{
		Use:   "scrape <playlist-url>",
		Short: "Download the audio of a playlist or channel",
		Long: `Download the audio of a playlist or channel on the executor.

The task writes a <prefix>_metadata.csv that can be passed to split --csv.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			req := tasks.ScrapeRequest{PlaylistURL: args[0], VoiceName: voiceName}
			return a.submit(cmd.Context(), req, detach)
		},
	}

	cmd.Flags().StringVar(&voiceName, "voice-name", "", "Label for the downloaded voice")
	addDetachFlag(cmd, &detach)

	return cmd
}

func newSplitCommand(opts *rootOptions) *cobra.Command {
	var (
		audioFolder string
		csvFilename string
		method      string
		silenceLen  int
		maxAudioLen int
		detach      bool
	)

	cmd := &cobra.Command{
		Use:   "split",
		Short: "Cut audio into clips",
		Long: `Cut audio into clips, either from a folder on the executor or from the csv a
scrape produced. Exactly one of --audio-folder and --csv is required.

Folder sources use --method (vad or semantic, default from
defaults.splitting_method). CSV sources are always split by voice activity.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			req := tasks.SplitRequest{
				AudioFolder: audioFolder,
				CSVFilename: csvFilename,
				SilenceLen:  silenceLen,
				MaxAudioLen: maxAudioLen,
			}
			switch {
			case cmd.Flags().Changed("method"):
				req.Method = tasks.SplittingMethod(method)
			case audioFolder != "":
				req.Method = tasks.SplittingMethod(a.cfg.Defaults.SplittingMethod)
			}
			return a.submit(cmd.Context(), req, detach)
		},
	}

	cmd.Flags().StringVar(&audioFolder, "audio-folder", "", "Folder on the executor holding the audio")
	cmd.Flags().StringVar(&csvFilename, "csv", "", "CSV file from a scrape (see taskwatch csvs)")
	cmd.Flags().StringVar(&method, "method", "", "Splitting method: vad or semantic")
	cmd.Flags().IntVar(&silenceLen, "silence-len", 0, "Minimum silence between clips in ms (0 keeps the executor default)")
	cmd.Flags().IntVar(&maxAudioLen, "max-audio-len", 0, "Maximum clip length in ms (0 keeps the executor default)")
	cmd.MarkFlagsMutuallyExclusive("audio-folder", "csv")
	addDetachFlag(cmd, &detach)

	return cmd
}

func newTranscribeCommand(opts *rootOptions) *cobra.Command {
	var (
		output      string
		method      string
		apiKey      string
		audioFolder string
		detach      bool
	)

	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Transcribe split clips into a csv",
		Long: `Transcribe previously split clips into a csv on the executor.

The elevenlabs method needs an API key, from --api-key or the
ELEVENLABS_API_KEY environment variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("output") {
				output = a.cfg.Defaults.OutputCSVName
			}
			if !cmd.Flags().Changed("method") {
				method = a.cfg.Defaults.TranscribeMethod
			}
			if strings.TrimSpace(apiKey) == "" {
				apiKey = os.Getenv(apiKeyEnv)
			}
			req := tasks.TranscribeRequest{
				OutputCSVName: output,
				Method:        tasks.TranscribeMethod(method),
				APIKey:        apiKey,
				AudioFolder:   audioFolder,
			}
			return a.submit(cmd.Context(), req, detach)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", tasks.DefaultOutputCSV, "Output csv name")
	cmd.Flags().StringVar(&method, "method", string(tasks.TranscribeLocal), "Transcription method: local or elevenlabs")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "ElevenLabs API key (default $"+apiKeyEnv+")")
	cmd.Flags().StringVar(&audioFolder, "audio-folder", "", "Folder of clips (defaults to the split output)")
	addDetachFlag(cmd, &detach)

	return cmd
}

func addDetachFlag(cmd *cobra.Command, detach *bool) {
	cmd.Flags().BoolVarP(detach, "detach", "d", false, "Submit only and print the task id")
}
