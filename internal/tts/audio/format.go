// Package audio describes the audio formats returned by the inference service
// and detects them from raw bytes.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Format represents a supported audio container.
type Format string

// Supported formats.
const (
	FormatWAV Format = "wav"
	FormatMP3 Format = "mp3"
)

// MIME types for the supported formats.
const (
	MIMETypeWAV = "audio/wav"
	MIMETypeMP3 = "audio/mpeg"
)

// ErrUnsupportedFormat is returned for formats other than wav and mp3.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Magic numbers used for sniffing.
var (
	magicRIFF = []byte("RIFF")
	magicWAVE = []byte("WAVE")
	magicID3  = []byte("ID3")
)

const (
	waveOffset    = 8
	minWAVHeader  = 12
	mpegSyncByte  = 0xFF
	mpegSyncMask  = 0xE0
	minMPEGHeader = 2
)

// ParseFormat accepts "wav" or "mp3" in any case; empty means wav.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatWAV:
		return FormatWAV, nil
	case FormatMP3, "mpeg":
		return FormatMP3, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

// MIMEType returns the declared content type of the format.
func (f Format) MIMEType() string {
	if f == FormatMP3 {
		return MIMETypeMP3
	}

	return MIMETypeWAV
}

// Extension returns the file extension including the leading dot.
func (f Format) Extension() string {
	if f == FormatMP3 {
		return ".mp3"
	}

	return ".wav"
}

// Detect sniffs data and reports its format. ok is false when the bytes match
// neither a RIFF/WAVE header nor an MP3 (ID3 tag or frame sync) header.
func Detect(data []byte) (Format, bool) {
	if len(data) >= minWAVHeader &&
		bytes.HasPrefix(data, magicRIFF) &&
		bytes.Equal(data[waveOffset:minWAVHeader], magicWAVE) {
		return FormatWAV, true
	}

	if bytes.HasPrefix(data, magicID3) {
		return FormatMP3, true
	}

	if len(data) >= minMPEGHeader && data[0] == mpegSyncByte && data[1]&mpegSyncMask == mpegSyncMask {
		return FormatMP3, true
	}

	return "", false
}

// Resolve returns the sniffed format of data, falling back to declared.
func Resolve(data []byte, declared Format) Format {
	if detected, ok := Detect(data); ok {
		return detected
	}

	return declared
}
