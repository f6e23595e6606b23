package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var embeddedDefaults []byte

// Defaults are the compiled-in capture and media settings. A file named by
// FITTING_DEFAULTS_FILE is layered on top of them.
type Defaults struct {
	Capture    CaptureDefaults    `yaml:"capture"`
	Timeline   TimelineDefaults   `yaml:"timeline"`
	Polling    PollingDefaults    `yaml:"polling"`
	Normalizer NormalizerDefaults `yaml:"normalizer"`
	Encoder    EncoderDefaults    `yaml:"encoder"`
}

type CaptureDefaults struct {
	PreferredWidth     int     `yaml:"preferred_width"`
	PreferredHeight    int     `yaml:"preferred_height"`
	TargetAspectWidth  int     `yaml:"target_aspect_width"`
	TargetAspectHeight int     `yaml:"target_aspect_height"`
	AspectTolerance    float64 `yaml:"aspect_tolerance"`
	CanvasWidth        int     `yaml:"canvas_width"`
	CanvasHeight       int     `yaml:"canvas_height"`
	FPS                int     `yaml:"fps"`
	DurationMS         int     `yaml:"duration_ms"`
	FacingMode         string  `yaml:"facing_mode"`
}

func (c CaptureDefaults) Duration() time.Duration {
	return time.Duration(c.DurationMS) * time.Millisecond
}

func (c CaptureDefaults) TargetAspect() float64 {
	if c.TargetAspectHeight == 0 {
		return 0
	}
	return float64(c.TargetAspectWidth) / float64(c.TargetAspectHeight)
}

type TimelineDefaults struct {
	SettleDelayMS int `yaml:"settle_delay_ms"`
	TickMS        int `yaml:"tick_ms"`
	CountdownFrom int `yaml:"countdown_from"`
}

type PollingDefaults struct {
	IntervalMS int `yaml:"interval_ms"`
}

type NormalizerDefaults struct {
	Format          string  `yaml:"format"`
	Quality         float64 `yaml:"quality"`
	MaxDimension    int     `yaml:"max_dimension"`
	MaxSizeKB       int     `yaml:"max_size_kb"`
	QualityFloor    float64 `yaml:"quality_floor"`
	QualityStep     float64 `yaml:"quality_step"`
	DimensionFloor  int     `yaml:"dimension_floor"`
	DimensionFactor float64 `yaml:"dimension_factor"`
	HEICQuality     int     `yaml:"heic_quality"`
}

type EncoderDefaults struct {
	JPEGQuality int `yaml:"jpeg_quality"`
}

// LoadDefaults parses the embedded document and then the optional override
// file. Keys missing from the override keep their embedded value.
func LoadDefaults(overridePath string) (Defaults, error) {
	var d Defaults
	if err := yaml.Unmarshal(embeddedDefaults, &d); err != nil {
		return Defaults{}, fmt.Errorf("parse embedded defaults: %w", err)
	}
	if overridePath == "" {
		return d, nil
	}
	raw, err := os.ReadFile(overridePath)
	if err != nil {
		return Defaults{}, fmt.Errorf("read defaults override: %w", err)
	}
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return Defaults{}, fmt.Errorf("parse defaults override %s: %w", overridePath, err)
	}
	if err := d.validate(); err != nil {
		return Defaults{}, fmt.Errorf("defaults override %s: %w", overridePath, err)
	}
	return d, nil
}

func (d Defaults) validate() error {
	switch {
	case d.Capture.DurationMS <= 0:
		return fmt.Errorf("capture.duration_ms must be positive")
	case d.Capture.DurationMS%1000 != 0:
		return fmt.Errorf("capture.duration_ms must be whole seconds")
	case d.Capture.FPS <= 0:
		return fmt.Errorf("capture.fps must be positive")
	case d.Capture.TargetAspectWidth <= 0 || d.Capture.TargetAspectHeight <= 0:
		return fmt.Errorf("capture target aspect must be positive")
	case d.Timeline.TickMS <= 0:
		return fmt.Errorf("timeline.tick_ms must be positive")
	}
	return nil
}
