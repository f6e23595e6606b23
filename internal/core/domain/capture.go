package domain

import (
	"image"
	"math"
	"time"
)

// Resolution is a negotiated or requested frame size in pixels.
type Resolution struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

func (r Resolution) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// Aspect returns width/height, or 0 for an unknown resolution.
func (r Resolution) Aspect() float64 {
	if !r.Valid() {
		return 0
	}
	return float64(r.Width) / float64(r.Height)
}

// AspectDeviation is the relative distance between the resolution's aspect
// ratio and target. Unknown resolutions deviate infinitely.
func (r Resolution) AspectDeviation(target float64) float64 {
	actual := r.Aspect()
	if actual == 0 || target <= 0 {
		return math.Inf(1)
	}
	return math.Abs(actual-target) / target
}

// StreamConstraints describes a camera request. A nil Ideal asks for whatever
// the device offers.
type StreamConstraints struct {
	Ideal      *Resolution
	FacingMode string
}

func Unconstrained() StreamConstraints {
	return StreamConstraints{FacingMode: "user"}
}

// Frame is one decoded video frame.
type Frame struct {
	Image      image.Image
	CapturedAt time.Time
}

// CapturedClip is a recorded video ready for submission.
type CapturedClip struct {
	Data        []byte        `json:"-"`
	Duration    time.Duration `json:"duration"`
	MIMEType    string        `json:"mime_type"`
	Width       int           `json:"width"`
	Height      int           `json:"height"`
	Frames      int           `json:"frames"`
	Reprojected bool          `json:"reprojected"`
}

// FileExtension returns the extension used when naming the uploaded clip.
func (c CapturedClip) FileExtension() string {
	switch c.MIMEType {
	case "video/webm":
		return "webm"
	case "video/mp4":
		return "mp4"
	default:
		return "avi"
	}
}

func (c CapturedClip) clone() *CapturedClip {
	out := c
	out.Data = append([]byte(nil), c.Data...)
	return &out
}
