package video

import "errors"

var (
	ErrNoVideoStream = errors.New("no video stream found")
	ErrDecodeFailed  = errors.New("decode failed")
	ErrEndOfStream   = errors.New("end of stream")
	ErrSourceOpen    = errors.New("source could not be opened")
	ErrNotOpened     = errors.New("source not opened")
	ErrInvalidSeek   = errors.New("seek fraction outside [0,1]")
)

// Reports whether f is a usable seek fraction
func ValidFraction(f float64) bool {
	return f >= 0 && f <= 1
}
