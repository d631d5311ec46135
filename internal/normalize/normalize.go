package normalize

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	"image/jpeg"   // decode + re-encode target
	_ "image/png"  // register PNG decoder
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
	xdraw "golang.org/x/image/draw"

	"github.com/tiptally/tiptally/constants"
	"github.com/tiptally/tiptally/internal/common"
)

// RawImage is an uploaded receipt as received from the caller.
type RawImage struct {
	Data      []byte
	MediaType string
	Filename  string
}

// NormalizedImage is the canonical representation produced by the
// normalizer: JPEG bytes bounded to the configured dimensions, staged on
// disk until Release is called. The staging file must not outlive the
// processing of the item that owns it.
type NormalizedImage struct {
	Bytes       []byte
	Width       int
	Height      int
	StagingPath string
	Filename    string // original upload name, for logs and upstream hints

	releaseOnce sync.Once
	releaseErr  error
}

// Release removes the staging file. Safe to call more than once.
func (n *NormalizedImage) Release() error {
	n.releaseOnce.Do(func() {
		if n.StagingPath == "" {
			return
		}
		if err := os.Remove(n.StagingPath); err != nil && !os.IsNotExist(err) {
			n.releaseErr = err
		}
	})
	return n.releaseErr
}

// Normalizer resizes and recompresses raw uploads into the canonical
// JPEG form that is hashed and sent upstream. Output is deterministic
// for identical input bytes and settings.
type Normalizer struct {
	cfg    common.NormalizeConfig
	logger *slog.Logger
}

func NewNormalizer(cfg common.NormalizeConfig, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxDimension <= 0 {
		cfg.MaxDimension = 1600
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 80
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = os.TempDir()
	}
	return &Normalizer{cfg: cfg, logger: logger}
}

// Normalize decodes raw, bounds it to the configured maximum dimension
// while preserving aspect ratio (never upscaling), re-encodes as JPEG and
// writes the result to a staging file. The caller owns the returned
// NormalizedImage and must call Release on every exit path.
func (n *Normalizer) Normalize(ctx context.Context, raw RawImage) (*NormalizedImage, error) {
	start := time.Now()

	format := classify(raw)
	if format == "" {
		return nil, common.NewAppError("UNSUPPORTED_MEDIA_TYPE",
			fmt.Sprintf("media type %q is not an image", raw.MediaType),
			common.ErrUnsupportedMediaType)
	}

	img, err := n.decode(raw, format)
	if err != nil {
		n.logger.Error("normalize.decode_failed", "filename", raw.Filename, "media_type", raw.MediaType, "err", err)
		return nil, common.NewAppError("NORMALIZATION_FAILED",
			"decoding image: "+err.Error(), common.ErrNormalizationFailed)
	}

	img = n.bound(img)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: n.cfg.JPEGQuality}); err != nil {
		return nil, common.NewAppError("NORMALIZATION_FAILED",
			"encoding jpeg: "+err.Error(), common.ErrNormalizationFailed)
	}

	path, err := n.stage(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("stage normalized image: %w", err)
	}

	b := img.Bounds()
	out := &NormalizedImage{
		Bytes:       buf.Bytes(),
		Width:       b.Dx(),
		Height:      b.Dy(),
		StagingPath: path,
		Filename:    raw.Filename,
	}

	n.logger.Debug("normalize.ok",
		"filename", raw.Filename,
		"in_bytes", len(raw.Data),
		"out_bytes", len(out.Bytes),
		"width", out.Width,
		"height", out.Height,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// classify resolves the input format from the declared media type first,
// then from content sniffing so misdeclared phone uploads still work.
func classify(raw RawImage) constants.Format {
	if f := constants.MapMediaType(raw.MediaType); f != "" {
		return f
	}
	if isHEIC(raw.Data) {
		return constants.IMAGE
	}
	if isPDF(raw.Data) {
		return constants.PDF
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(raw.Data)); err == nil {
		return constants.IMAGE
	}
	return ""
}

func (n *Normalizer) decode(raw RawImage, format constants.Format) (image.Image, error) {
	if format == constants.PDF {
		return renderPDF(raw.Data)
	}
	if isHEIC(raw.Data) {
		img, err := heic.Decode(bytes.NewReader(raw.Data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}
	img, _, err := image.Decode(bytes.NewReader(raw.Data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// renderPDF rasterizes the first page; receipts are single page in practice.
func renderPDF(data []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// bound scales img so neither dimension exceeds MaxDimension, preserving
// aspect ratio. Images already inside the bound pass through untouched.
func (n *Normalizer) bound(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	max := n.cfg.MaxDimension
	if w <= max && h <= max {
		return img
	}

	var nw, nh int
	if w >= h {
		nw = max
		nh = h * max / w
	} else {
		nh = max
		nw = w * max / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

func (n *Normalizer) stage(data []byte) (string, error) {
	f, err := os.CreateTemp(n.cfg.StagingDir, "tiptally-*.jpg")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// isHEIC checks the ftyp box brands HEIC containers start with.
func isHEIC(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heif", "mif1", "msf1":
		return true
	}
	return false
}

func isPDF(data []byte) bool {
	return len(data) >= 5 && string(data[:5]) == "%PDF-"
}
