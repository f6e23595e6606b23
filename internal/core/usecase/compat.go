package usecase

import (
	"context"

	"github.com/kirillkom/virtual-fitting/internal/core/ports"
)

const (
	FeatureCameraAccess   = "camera access"
	FeatureVideoRecording = "video recording"
)

type Compatibility struct {
	Compatible bool     `json:"compatible"`
	Missing    []string `json:"missing,omitempty"`
}

// CheckCompatibility reports which capture features this host lacks. The
// image upload path works without any of them.
func CheckCompatibility(ctx context.Context, prober ports.DeviceProber, encoder ports.ClipEncoder) Compatibility {
	var missing []string

	if prober == nil {
		missing = append(missing, FeatureCameraAccess)
	} else if ok, err := prober.HasVideoInput(ctx); err != nil || !ok {
		missing = append(missing, FeatureCameraAccess)
	}

	if encoder == nil {
		missing = append(missing, FeatureVideoRecording)
	} else if w, err := encoder.Begin(16, 16, 1); err != nil {
		missing = append(missing, FeatureVideoRecording)
	} else {
		w.Abort()
	}

	return Compatibility{Compatible: len(missing) == 0, Missing: missing}
}
