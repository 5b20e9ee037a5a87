package commands

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rossigee/veo-video-proxy/internal/chat"
	"github.com/rossigee/veo-video-proxy/internal/veo"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate videos once and write them to disk",
	Args:  cobra.NoArgs,
	RunE:  runGenerate,
}

var (
	genPrompt    string
	genImage     string
	genOutPrefix string
)

func init() {
	flags := generateCmd.Flags()
	flags.StringVar(&genPrompt, "prompt", "", "text prompt")
	flags.StringVar(&genImage, "image", "", "image file to animate")
	flags.StringVar(&genOutPrefix, "out-prefix", "video", "output files are written as <prefix>_<index>.mp4")
	flags.Int("sample-count", 1, "number of videos to generate")
	flags.String("aspect-ratio", veo.AspectLandscape, "16:9 or 9:16")
	flags.Int("duration-seconds", 6, "video length in seconds")
	flags.Int("seed", 0, "generation seed")

	bindFlags(flags.Lookup, "sample-count", "aspect-ratio", "duration-seconds", "seed")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var image *veo.Image
	if genImage != "" {
		img, err := readImage(genImage)
		if err != nil {
			return err
		}
		image = img
	}

	service, err := newService()
	if err != nil {
		return fmt.Errorf("failed to initialize video service: %w", err)
	}

	req := service.NewRequest(genPrompt, image, cfg.SampleCount, cfg.AspectRatio, cfg.DurationSeconds)
	outcome := service.Generate(ctx, req, progressLogger{})
	if !outcome.Success {
		return fmt.Errorf("generation %s: %w", outcome.Status, outcome.Err)
	}

	return writeVideos(genOutPrefix, outcome.Videos)
}

func readImage(path string) (*veo.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if !chat.IsImage(mimeType) {
		mimeType = http.DetectContentType(data)
	}
	return &veo.Image{Bytes: data, MimeType: mimeType}, nil
}

func writeVideos(prefix string, videos []veo.Video) error {
	for _, video := range videos {
		if len(video.Data) == 0 {
			logrus.WithFields(logrus.Fields{
				"index": video.Index,
				"uri":   video.URI,
			}).Info("Video stored remotely")
			continue
		}
		name := fmt.Sprintf("%s_%d.mp4", prefix, video.Index)
		if err := os.WriteFile(name, video.Data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
		logrus.WithFields(logrus.Fields{
			"file": name,
			"size": len(video.Data),
		}).Info("Video saved")
	}
	return nil
}

// progressLogger reports generation progress on the console.
type progressLogger struct{}

func (progressLogger) UpdateProgress(stage string, percent float64) {
	logrus.WithField("percent", percent).Info(stage)
}
