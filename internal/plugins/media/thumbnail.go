package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // ffmpeg pipes the extracted frame as PNG.
	"os/exec"
	"strconv"
	"strings"
	"time"

	"golang.org/x/image/draw"
)

// ThumbnailDeriver produces one still image for a stored video.
type ThumbnailDeriver interface {
	Derive(ctx context.Context, videoPath, outDir, outName string) error
}

// ThumbnailFault describes a failed derivation. It is logged and
// swallowed; the owning upload stays valid without a thumbnail.
type ThumbnailFault struct {
	Video string
	Err   error
}

// Error implements the error interface.
func (f *ThumbnailFault) Error() string {
	return fmt.Sprintf("deriving thumbnail for %s: %v", f.Video, f.Err)
}

// Unwrap returns the underlying error.
func (f *ThumbnailFault) Unwrap() error {
	return f.Err
}

// CommandRunner runs an external program and returns its stdout.
type CommandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs commands with os/exec, folding stderr into errors.
type execRunner struct{}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return nil, fmt.Errorf("running %s: %w: %s", name, err, msg)
	}
	return stdout.Bytes(), nil
}

// FFmpegDeriver grabs the frame at the temporal midpoint of a video with
// ffmpeg, scales it to a fixed raster and stores it as JPEG.
type FFmpegDeriver struct {
	store       Store
	runner      CommandRunner
	ffmpegPath  string
	ffprobePath string
	width       int
	height      int
	timeout     time.Duration
}

// FFmpegOptions configures an FFmpegDeriver. Zero values fall back to
// "ffmpeg"/"ffprobe" on PATH, 320x240 and a 30 second timeout.
type FFmpegOptions struct {
	FFmpegPath  string
	FFprobePath string
	Width       int
	Height      int
	Timeout     time.Duration

	// Runner overrides how external commands are executed (tests).
	Runner CommandRunner
}

// NewFFmpegDeriver creates a deriver that writes through store.
func NewFFmpegDeriver(store Store, opts FFmpegOptions) *FFmpegDeriver {
	d := &FFmpegDeriver{
		store:       store,
		runner:      opts.Runner,
		ffmpegPath:  opts.FFmpegPath,
		ffprobePath: opts.FFprobePath,
		width:       opts.Width,
		height:      opts.Height,
		timeout:     opts.Timeout,
	}
	if d.runner == nil {
		d.runner = execRunner{}
	}
	if d.ffmpegPath == "" {
		d.ffmpegPath = "ffmpeg"
	}
	if d.ffprobePath == "" {
		d.ffprobePath = "ffprobe"
	}
	if d.width <= 0 || d.height <= 0 {
		d.width, d.height = 320, 240
	}
	if d.timeout <= 0 {
		d.timeout = 30 * time.Second
	}
	return d
}

// Derive writes outDir/outName. Every failure is returned as a
// *ThumbnailFault.
func (d *FFmpegDeriver) Derive(ctx context.Context, videoPath, outDir, outName string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	duration, err := d.probeDuration(ctx, videoPath)
	if err != nil {
		return &ThumbnailFault{Video: videoPath, Err: err}
	}

	frame, err := d.extractFrame(ctx, videoPath, duration/2)
	if err != nil {
		return &ThumbnailFault{Video: videoPath, Err: err}
	}

	thumb, err := d.render(frame)
	if err != nil {
		return &ThumbnailFault{Video: videoPath, Err: err}
	}

	if _, err := d.store.Write(ctx, outDir, outName, bytes.NewReader(thumb)); err != nil {
		return &ThumbnailFault{Video: videoPath, Err: err}
	}
	return nil
}

// probeDuration asks ffprobe for the container duration. An unknown
// duration (live streams, some AVI files) yields zero so the first frame
// is used.
func (d *FFmpegDeriver) probeDuration(ctx context.Context, videoPath string) (time.Duration, error) {
	out, err := d.runner.Output(ctx, d.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	if err != nil {
		return 0, fmt.Errorf("probing duration: %w", err)
	}
	return parseDuration(string(out)), nil
}

// parseDuration converts ffprobe's seconds output ("12.345000") to a
// duration; "N/A" and garbage become zero.
func parseDuration(s string) time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

// extractFrame returns exactly one PNG-encoded frame at offset.
func (d *FFmpegDeriver) extractFrame(ctx context.Context, videoPath string, at time.Duration) ([]byte, error) {
	out, err := d.runner.Output(ctx, d.ffmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-ss", strconv.FormatFloat(at.Seconds(), 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	if err != nil {
		return nil, fmt.Errorf("extracting frame: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("extracting frame: decoder produced no output")
	}
	return out, nil
}

// render decodes a frame and scales it to exactly width x height, then
// encodes it as JPEG.
func (d *FFmpegDeriver) render(frame []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
