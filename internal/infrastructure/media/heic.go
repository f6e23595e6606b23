package media

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/heic"
)

// HEICConverter decodes HEIC/HEIF stills and re-encodes them as JPEG.
type HEICConverter struct {
	quality int
}

func NewHEICConverter(quality int) *HEICConverter {
	if quality <= 0 || quality > 100 {
		quality = 95
	}
	return &HEICConverter{quality: quality}
}

func (c *HEICConverter) ToJPEG(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := heic.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode heic: %w", err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(c.quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
