package media

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// mockRunner implements CommandRunner for testing.
type mockRunner struct {
	outputFn func(name string, args []string) ([]byte, error)
}

func (m *mockRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	if m.outputFn != nil {
		return m.outputFn(name, args)
	}
	return nil, errors.New("not configured")
}

// testFrame returns a PNG-encoded solid frame of the given size.
func testFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// argAfter returns the argument following flag, or "".
func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestFFmpegDeriver_Derive(t *testing.T) {
	store := newTestStore(t)
	frame := testFrame(t, 64, 48)
	var seekTo string

	runner := &mockRunner{
		outputFn: func(name string, args []string) ([]byte, error) {
			switch name {
			case "ffprobe":
				return []byte("10.000000\n"), nil
			case "ffmpeg":
				seekTo = argAfter(args, "-ss")
				return frame, nil
			}
			return nil, errors.New("unexpected command " + name)
		},
	}
	d := NewFFmpegDeriver(store, FFmpegOptions{Runner: runner})

	videoPath := filepath.Join(store.UploadsDir(), "clip.mp4")
	if err := d.Derive(context.Background(), videoPath, store.ThumbnailsDir(), "clip.jpg"); err != nil {
		t.Fatalf("Derive failed: %v", err)
	}

	if seekTo != "5.000" {
		t.Errorf("expected seek to the midpoint 5.000, got %q", seekTo)
	}

	data, err := os.ReadFile(filepath.Join(store.ThumbnailsDir(), "clip.jpg"))
	if err != nil {
		t.Fatalf("thumbnail not written: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("thumbnail is not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 240 {
		t.Errorf("expected 320x240, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestFFmpegDeriver_CustomSizeAndPaths(t *testing.T) {
	store := newTestStore(t)
	frame := testFrame(t, 10, 10)
	var commands []string

	runner := &mockRunner{
		outputFn: func(name string, args []string) ([]byte, error) {
			commands = append(commands, name)
			if name == "/opt/ffprobe" {
				return []byte("N/A"), nil
			}
			if got := argAfter(args, "-ss"); got != "0.000" {
				t.Errorf("unknown duration should seek to 0, got %q", got)
			}
			return frame, nil
		},
	}
	d := NewFFmpegDeriver(store, FFmpegOptions{
		FFmpegPath:  "/opt/ffmpeg",
		FFprobePath: "/opt/ffprobe",
		Width:       160,
		Height:      90,
		Runner:      runner,
	})

	if err := d.Derive(context.Background(), "stream.mkv", store.ThumbnailsDir(), "stream.jpg"); err != nil {
		t.Fatalf("Derive failed: %v", err)
	}
	if len(commands) != 2 || commands[0] != "/opt/ffprobe" || commands[1] != "/opt/ffmpeg" {
		t.Errorf("unexpected commands %v", commands)
	}

	f, err := os.Open(filepath.Join(store.ThumbnailsDir(), "stream.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 160 || cfg.Height != 90 {
		t.Errorf("expected 160x90, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestFFmpegDeriver_Failures(t *testing.T) {
	tests := []struct {
		name   string
		output func(name string, args []string) ([]byte, error)
	}{
		{"probe fails", func(name string, args []string) ([]byte, error) {
			return nil, errors.New("moov atom not found")
		}},
		{"extract fails", func(name string, args []string) ([]byte, error) {
			if name == "ffprobe" {
				return []byte("3.2"), nil
			}
			return nil, errors.New("invalid data found when processing input")
		}},
		{"empty frame", func(name string, args []string) ([]byte, error) {
			if name == "ffprobe" {
				return []byte("3.2"), nil
			}
			return nil, nil
		}},
		{"undecodable frame", func(name string, args []string) ([]byte, error) {
			if name == "ffprobe" {
				return []byte("3.2"), nil
			}
			return []byte("not a png"), nil
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			d := NewFFmpegDeriver(store, FFmpegOptions{Runner: &mockRunner{outputFn: tt.output}})

			err := d.Derive(context.Background(), "bad.mp4", store.ThumbnailsDir(), "bad.jpg")
			var fault *ThumbnailFault
			if !errors.As(err, &fault) {
				t.Fatalf("expected ThumbnailFault, got %v", err)
			}
			if fault.Video != "bad.mp4" {
				t.Errorf("unexpected fault video %q", fault.Video)
			}

			names, _ := store.List(context.Background(), store.ThumbnailsDir())
			if len(names) != 0 {
				t.Errorf("no thumbnail should be written, got %v", names)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"12.5\n":    12500 * time.Millisecond,
		"  3  ":     3 * time.Second,
		"N/A":       0,
		"":          0,
		"-1.0":      0,
		"garbage":   0,
		"3600.0000": time.Hour,
	}
	for in, want := range tests {
		if got := parseDuration(in); got != want {
			t.Errorf("parseDuration(%q) = %s, want %s", in, got, want)
		}
	}
}
