package media

import (
	"image"

	"github.com/disintegration/imaging"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
)

// Reprojector paints frames into a fixed canvas, covering it fully and
// cropping the dominant axis around the center.
type Reprojector struct {
	filter imaging.ResampleFilter
}

func NewReprojector() *Reprojector {
	return &Reprojector{filter: imaging.Linear}
}

func (r *Reprojector) Project(src image.Image, target domain.Resolution) image.Image {
	if src == nil || !target.Valid() {
		return src
	}
	b := src.Bounds()
	if b.Dx() == target.Width && b.Dy() == target.Height {
		return src
	}
	return imaging.Fill(src, target.Width, target.Height, imaging.Center, r.filter)
}
