package domain

import (
	"path/filepath"
	"strings"
)

// SourceImage is a user-supplied still image before normalization.
type SourceImage struct {
	Name     string
	MIMEType string
	Data     []byte
}

// IsHEIC reports whether the declared type or the file extension marks the
// image as HEIC/HEIF.
func (s SourceImage) IsHEIC() bool {
	switch strings.ToLower(strings.TrimSpace(s.MIMEType)) {
	case "image/heic", "image/heif":
		return true
	}
	switch strings.ToLower(filepath.Ext(s.Name)) {
	case ".heic", ".heif":
		return true
	}
	return false
}

// UploadedImage is a normalized still image. MIMEType is always a supported
// raster format, never HEIC.
type UploadedImage struct {
	Data         []byte `json:"-"`
	MIMEType     string `json:"mime_type"`
	DataURL      string `json:"-"`
	OriginalName string `json:"original_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
}

func (i UploadedImage) clone() *UploadedImage {
	out := i
	out.Data = append([]byte(nil), i.Data...)
	return &out
}
