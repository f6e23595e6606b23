package usecase

import (
	"context"
	"errors"
	"testing"
)

type proberFake struct {
	ok  bool
	err error
}

func (p proberFake) HasVideoInput(context.Context) (bool, error) { return p.ok, p.err }

func TestCheckCompatibility(t *testing.T) {
	tests := []struct {
		name    string
		prober  proberFake
		encoder *encoderFake
		missing []string
	}{
		{name: "all present", prober: proberFake{ok: true}, encoder: &encoderFake{}},
		{name: "no camera", prober: proberFake{ok: false}, encoder: &encoderFake{}, missing: []string{FeatureCameraAccess}},
		{name: "probe error", prober: proberFake{err: errors.New("enumerate")}, encoder: &encoderFake{}, missing: []string{FeatureCameraAccess}},
		{
			name:    "nothing works",
			prober:  proberFake{ok: false},
			encoder: &encoderFake{beginErr: errors.New("no temp dir")},
			missing: []string{FeatureCameraAccess, FeatureVideoRecording},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckCompatibility(context.Background(), tt.prober, tt.encoder)
			if got.Compatible != (len(tt.missing) == 0) {
				t.Fatalf("expected compatible=%v, got %+v", len(tt.missing) == 0, got)
			}
			if len(got.Missing) != len(tt.missing) {
				t.Fatalf("expected missing %v, got %v", tt.missing, got.Missing)
			}
			for i := range tt.missing {
				if got.Missing[i] != tt.missing[i] {
					t.Fatalf("expected missing %v, got %v", tt.missing, got.Missing)
				}
			}
		})
	}
}
