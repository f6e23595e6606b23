package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
	"github.com/kirillkom/virtual-fitting/internal/core/ports"
)

const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

type Options struct {
	Format          string  `yaml:"format"`
	Quality         float64 `yaml:"quality"`
	MaxDimension    int     `yaml:"max_dimension"`
	MaxSizeKB       int     `yaml:"max_size_kb"`
	QualityFloor    float64 `yaml:"quality_floor"`
	QualityStep     float64 `yaml:"quality_step"`
	DimensionFloor  int     `yaml:"dimension_floor"`
	DimensionFactor float64 `yaml:"dimension_factor"`
}

func DefaultOptions() Options {
	return Options{
		Format:          FormatPNG,
		Quality:         0.85,
		MaxDimension:    1920,
		MaxSizeKB:       500,
		QualityFloor:    0.4,
		QualityStep:     0.15,
		DimensionFloor:  800,
		DimensionFactor: 0.75,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Format != FormatJPEG {
		o.Format = FormatPNG
	}
	if o.Quality <= 0 || o.Quality > 1 {
		o.Quality = def.Quality
	}
	if o.MaxDimension <= 0 {
		o.MaxDimension = def.MaxDimension
	}
	if o.MaxSizeKB <= 0 {
		o.MaxSizeKB = def.MaxSizeKB
	}
	if o.QualityFloor <= 0 || o.QualityFloor > o.Quality {
		o.QualityFloor = math.Min(def.QualityFloor, o.Quality)
	}
	if o.QualityStep <= 0 {
		o.QualityStep = def.QualityStep
	}
	if o.DimensionFloor <= 0 {
		o.DimensionFloor = def.DimensionFloor
	}
	if o.DimensionFactor <= 0 || o.DimensionFactor >= 1 {
		o.DimensionFactor = def.DimensionFactor
	}
	return o
}

// HEICTranscoder turns HEIC/HEIF bytes into JPEG bytes.
type HEICTranscoder interface {
	ToJPEG(ctx context.Context, data []byte) ([]byte, error)
}

// Normalizer converts user images into PNG or JPEG that fits the upload
// budget.
type Normalizer struct {
	opts    Options
	heic    HEICTranscoder
	metrics ports.ClientMetrics
	logger  *slog.Logger
}

func NewNormalizer(opts Options, heic HEICTranscoder, metrics ports.ClientMetrics, logger *slog.Logger) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{
		opts:    opts.withDefaults(),
		heic:    heic,
		metrics: metrics,
		logger:  logger,
	}
}

func (n *Normalizer) Normalize(ctx context.Context, src domain.SourceImage) (domain.UploadedImage, error) {
	startedAt := time.Now()
	out, err := n.normalize(ctx, src)
	if n.metrics != nil {
		status := "ok"
		if err != nil {
			status = "failed"
		}
		n.metrics.ObserveNormalize(time.Since(startedAt), status)
	}
	return out, err
}

func (n *Normalizer) normalize(ctx context.Context, src domain.SourceImage) (domain.UploadedImage, error) {
	if len(src.Data) == 0 {
		return domain.UploadedImage{}, domain.WrapError(domain.ErrInvalidInput, "normalize image", domain.ErrUndecodableImage)
	}

	data := src.Data
	if src.IsHEIC() && n.heic != nil {
		converted, err := n.heic.ToJPEG(ctx, src.Data)
		if err != nil {
			n.logger.Warn("heic_transcode_failed", "name", src.Name, "error", err)
		} else {
			data = converted
		}
	}
	if err := ctx.Err(); err != nil {
		return domain.UploadedImage{}, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return domain.UploadedImage{}, domain.WrapError(domain.ErrInvalidInput, "normalize image", fmt.Errorf("%w: %v", domain.ErrUndecodableImage, err))
	}

	encoded, size, err := n.fitBudget(ctx, img)
	if err != nil {
		return domain.UploadedImage{}, err
	}

	mime := "image/png"
	if n.opts.Format == FormatJPEG {
		mime = "image/jpeg"
	}
	return domain.UploadedImage{
		Data:         encoded,
		MIMEType:     mime,
		DataURL:      DataURL(mime, encoded),
		OriginalName: src.Name,
		Width:        size.Width,
		Height:       size.Height,
	}, nil
}

// fitBudget walks the ladder: lower JPEG quality first, then shrink the
// longest side. Every step strictly lowers one of them, so the loop ends;
// at both floors the last encoding is returned as is.
func (n *Normalizer) fitBudget(ctx context.Context, img image.Image) ([]byte, domain.Resolution, error) {
	bounds := img.Bounds()
	ow, oh := bounds.Dx(), bounds.Dy()
	budget := n.opts.MaxSizeKB * 1024

	quality := percent(n.opts.Quality)
	qualityFloor := percent(n.opts.QualityFloor)
	qualityStep := max(1, percent(n.opts.QualityStep))
	maxDim := n.opts.MaxDimension

	type ladderStep struct {
		size    domain.Resolution
		quality int
	}
	var (
		resized  image.Image
		encoded  []byte
		lastStep ladderStep
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, domain.Resolution{}, err
		}

		size := FitWithin(ow, oh, maxDim)
		step := ladderStep{size: size, quality: quality}
		if encoded == nil || step != lastStep {
			if resized == nil || size != lastStep.size {
				resized = img
				if size.Width != ow || size.Height != oh {
					resized = imaging.Resize(img, size.Width, size.Height, imaging.Lanczos)
				}
			}
			var err error
			if encoded, err = n.encode(resized, quality); err != nil {
				return nil, domain.Resolution{}, err
			}
			lastStep = step
		}
		if len(encoded) <= budget {
			return encoded, size, nil
		}

		switch {
		case n.opts.Format == FormatJPEG && quality > qualityFloor:
			quality = max(qualityFloor, quality-qualityStep)
		case maxDim > n.opts.DimensionFloor:
			maxDim = max(n.opts.DimensionFloor, int(math.Floor(float64(maxDim)*n.opts.DimensionFactor)))
		default:
			n.logger.Warn("image_budget_exceeded",
				"bytes", len(encoded),
				"budget_bytes", budget,
				"width", size.Width,
				"height", size.Height,
				"quality", quality,
			)
			return encoded, size, nil
		}
	}
}

func (n *Normalizer) encode(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	if n.opts.Format == FormatJPEG {
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	} else {
		err = imaging.Encode(&buf, img, imaging.PNG)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", n.opts.Format, err)
	}
	return buf.Bytes(), nil
}

// FitWithin scales w x h down to fit a maxDim square, keeping the aspect
// ratio. It never upscales.
func FitWithin(w, h, maxDim int) domain.Resolution {
	nw, nh := float64(w), float64(h)
	if nw > float64(maxDim) {
		nh = float64(h) * float64(maxDim) / float64(w)
		nw = float64(maxDim)
	}
	if nh > float64(maxDim) {
		nw = float64(w) * float64(maxDim) / float64(h)
		nh = float64(maxDim)
	}
	return domain.Resolution{
		Width:  max(1, int(math.Round(nw))),
		Height: max(1, int(math.Round(nh))),
	}
}

func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Base64Payload strips the data URL prefix.
func Base64Payload(dataURL string) string {
	if _, payload, ok := strings.Cut(dataURL, ","); ok {
		return payload
	}
	return dataURL
}

func percent(f float64) int {
	return int(math.Round(f * 100))
}
