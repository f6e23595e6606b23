package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrTemporary    = errors.New("temporary failure")

	ErrDeviceDenied           = errors.New("camera permission denied")
	ErrDeviceNotFound         = errors.New("camera device not found")
	ErrConstraintUnsatisfied  = errors.New("camera constraints not satisfiable")
	ErrRecordingActive        = errors.New("recording already active")
	ErrUndecodableImage       = errors.New("image could not be decoded")
	ErrUnknownGarment         = errors.New("garment is not in the catalog")
	ErrNoCapture              = errors.New("no captured media in session")
	ErrJobTransitionForbidden = errors.New("job status transition not allowed")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// ErrorKind classifies user-facing failures. The kind decides which retry
// affordance the presentation offers.
type ErrorKind string

const (
	KindCameraAccessDenied ErrorKind = "CAMERA_ACCESS_DENIED"
	KindCameraNotAvailable ErrorKind = "CAMERA_NOT_AVAILABLE"
	KindRecordingFailed    ErrorKind = "RECORDING_FAILED"
	KindUploadFailed       ErrorKind = "UPLOAD_FAILED"
	KindGenerationFailed   ErrorKind = "GENERATION_FAILED"
	KindNetworkError       ErrorKind = "NETWORK_ERROR"
)

// AppError is the single failure record handed to the session error slot.
type AppError struct {
	Kind        ErrorKind `json:"type"`
	Message     string    `json:"message"`
	UserMessage string    `json:"user_message"`
	Retryable   bool      `json:"retryable"`

	Err error `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "app error"
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// AsAppError extracts an *AppError from the chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func newAppError(kind ErrorKind, userMessage string, retryable bool, err error) *AppError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &AppError{
		Kind:        kind,
		Message:     msg,
		UserMessage: userMessage,
		Retryable:   retryable,
		Err:         err,
	}
}

func CameraAccessDenied(err error) *AppError {
	return newAppError(KindCameraAccessDenied,
		"Camera access was denied. Allow camera use in your system settings and try again.", true, err)
}

// CameraMissing is the one non-retryable kind: without a hardware change a
// retry cannot succeed.
func CameraMissing(err error) *AppError {
	return newAppError(KindCameraNotAvailable,
		"No camera was found. Check that a camera is connected.", false, err)
}

func CameraStartFailed(err error) *AppError {
	return newAppError(KindCameraNotAvailable, "The camera could not be started.", true, err)
}

func RecordingFailed(err error) *AppError {
	return newAppError(KindRecordingFailed, "Recording failed. Please try again.", true, err)
}

func UploadFailed(err error) *AppError {
	return newAppError(KindUploadFailed, "The file upload failed. Please try again.", true, err)
}

func GenerationFailed(err error) *AppError {
	return newAppError(KindGenerationFailed, "Video generation failed. Please try again.", true, err)
}

func NetworkError(err error, userMessage string) *AppError {
	if userMessage == "" {
		userMessage = "A network error occurred. Please try again."
	}
	return newAppError(KindNetworkError, userMessage, true, err)
}
