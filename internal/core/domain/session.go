package domain

// SessionState is the cross-step mutable session. At most one of Clip and
// Image is set.
type SessionState struct {
	ID         string         `json:"id"`
	Clip       *CapturedClip  `json:"clip,omitempty"`
	Image      *UploadedImage `json:"image,omitempty"`
	Garment    *Garment       `json:"garment,omitempty"`
	Job        *GenerationJob `json:"job,omitempty"`
	UploadKey  string         `json:"upload_key,omitempty"`
	ResultURL  string         `json:"result_url,omitempty"`
	Processing bool           `json:"processing"`
	Error      *AppError      `json:"error,omitempty"`
}

// Clone returns a deep copy so callers never share mutable state with the
// store.
func (s SessionState) Clone() SessionState {
	out := s
	if s.Clip != nil {
		out.Clip = s.Clip.clone()
	}
	if s.Image != nil {
		out.Image = s.Image.clone()
	}
	if s.Garment != nil {
		g := *s.Garment
		out.Garment = &g
	}
	if s.Job != nil {
		j := *s.Job
		out.Job = &j
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	return out
}

// HasCapture reports whether a clip or an image is ready for submission.
func (s SessionState) HasCapture() bool {
	return s.Clip != nil || s.Image != nil
}
