package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/0bVdnt/PixlSurface/internal/command"
	"github.com/0bVdnt/PixlSurface/internal/config"
	"github.com/0bVdnt/PixlSurface/internal/logger"
	"github.com/0bVdnt/PixlSurface/internal/player"
	"github.com/0bVdnt/PixlSurface/internal/renderer"
	"github.com/0bVdnt/PixlSurface/internal/surface"
	"github.com/0bVdnt/PixlSurface/internal/video"
)

var (
	// Access these variables only from a main package:

	Root = &cobra.Command{
		Use:          "pixlsurface",
		Short:        "Stream videos and still images onto a BGRA surface",
		SilenceUsage: true,
	}

	Play = &cobra.Command{
		Use:   "play",
		Short: "Run the player with a terminal preview of the surface",
		Args:  cobra.NoArgs,
		RunE:  play,
	}

	Probe = &cobra.Command{
		Use:   "probe <file>",
		Short: "Print the metadata of a video file",
		Args:  cobra.ExactArgs(1),
		RunE:  probe,
	}
)

func init() {
	Root.AddCommand(Play)
	Root.AddCommand(Probe)

	Play.Flags().String("config", "", "path to a YAML config file")
	Play.Flags().String("video", "", "video to play, overrides defaultVideoPath")
	Play.Flags().String("image", "", "image to show, overrides defaultImagePath")
	Play.Flags().String("listen", "", "address for the websocket command bus, e.g. localhost:8765")
	Play.Flags().String("ws-path", "/", "HTTP path of the websocket command bus")
	Play.Flags().Bool("stdin", false, "read '<topic> <argument>' commands from stdin")
	Play.Flags().String("log-file", "", "write logs to this file")
	Play.Flags().String("log-level", "info", "log level")
	Play.Flags().Float64("render-fps", 30, "terminal refresh rate")

	Probe.Flags().Bool("thumbnail", false, "print a frame of the video")
	Probe.Flags().Duration("at", 0, "timestamp of the thumbnail frame")
	Probe.Flags().Int("width", 80, "thumbnail width in columns")
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()

	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return cfg, err
		}
	}

	if cmd.Flags().Changed("video") {
		cfg.DefaultVideoPath, _ = cmd.Flags().GetString("video")
	}
	if cmd.Flags().Changed("image") {
		cfg.DefaultImagePath, _ = cmd.Flags().GetString("image")
	}
	return cfg, cfg.Validate()
}

func topics(cfg config.Config) command.Topics {
	return command.Topics{
		Image:      cfg.TopicName,
		ImagePath:  cfg.TopicImagePath,
		VideoPath:  cfg.TopicVideoPath,
		VideoSeek:  cfg.TopicVideoSeek,
		VideoPause: cfg.TopicVideoPaused,
	}
}

func commandSources(cmd *cobra.Command, cfg config.Config, log *logger.Logger) command.Source {
	var sources command.Multi

	if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
		wsPath, _ := cmd.Flags().GetString("ws-path")
		sources = append(sources, command.NewWebsocketSource(addr, wsPath, topics(cfg), log))
	}
	if stdin, _ := cmd.Flags().GetBool("stdin"); stdin {
		sources = append(sources, command.NewLineSource(os.Stdin, topics(cfg), log))
	}

	if len(sources) == 0 {
		return nil
	}
	return sources
}

func play(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logFile, _ := cmd.Flags().GetString("log-file")
	logLevel, _ := cmd.Flags().GetString("log-level")
	log, err := logger.New(logFile, logLevel)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := log.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}()

	log.WithField("namespace", cfg.Namespace).Info("Starting player")

	rend, err := renderer.New(surface.Spec{
		Width:       cfg.Width,
		Height:      cfg.Height,
		DoubleSided: cfg.UseDoubleSideRenderingOnPlanes,
	})
	if err != nil {
		return fmt.Errorf("terminal: %w", err)
	}
	defer rend.Close()

	source := video.NewSource(ctx, log)
	p, err := player.New(cfg, source, rend, commandSources(cmd, cfg, log), player.Options{Logger: log})
	if err != nil {
		return err
	}
	rend.SetStatus(p.StatusLine)

	if err := p.Start(ctx); err != nil {
		return multierror.Append(err, p.Close()).ErrorOrNil()
	}

	renderFPS, _ := cmd.Flags().GetFloat64("render-fps")
	rend.Run(ctx, renderFPS)

	return p.Close()
}

func probe(cmd *cobra.Command, args []string) error {
	path := args[0]

	meta, err := video.Probe(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	codec := meta.Codec
	if codec == "" {
		codec = "?"
	}
	fmt.Fprintf(out, "Video: %s\n", path)
	fmt.Fprintf(out, "  size:     %dx%d\n", meta.Width, meta.Height)
	fmt.Fprintf(out, "  codec:    %s\n", codec)
	fmt.Fprintf(out, "  fps:      %.3f\n", meta.FPS)
	fmt.Fprintf(out, "  frames:   %d\n", meta.FrameCount)
	fmt.Fprintf(out, "  duration: %s\n", meta.Duration.Round(time.Millisecond))

	thumbnail, _ := cmd.Flags().GetBool("thumbnail")
	if !thumbnail {
		return nil
	}

	at, _ := cmd.Flags().GetDuration("at")
	width, _ := cmd.Flags().GetInt("width")
	height := width * meta.Height / max(meta.Width, 1)

	frame, err := video.ExtractFrame(path, at, width, height)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nFrame at: %v\n\n", frame.Timestamp)
	fmt.Fprint(out, renderer.RenderColor(frame.RGBA()))
	return nil
}
