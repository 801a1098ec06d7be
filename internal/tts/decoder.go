package tts

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/book-expert/voice-studio/internal/tts/audio"
)

// Output field names, tried in order by Decode.
const (
	fieldAudioBase64 = "audio_base64"
	fieldAudioURL    = "audio_url"
	fieldNested      = "output"
	fieldError       = "error"
)

// Audio is a playable result. Exactly one of Data or URL is set: Data when
// the service returned inline bytes, URL when it returned a direct link.
type Audio struct {
	Data     []byte
	URL      string
	Format   audio.Format
	MIMEType string
}

// Remote reports whether the audio lives behind a URL rather than in memory.
func (a Audio) Remote() bool {
	return len(a.Data) == 0 && a.URL != ""
}

// Decode extracts audio from a COMPLETED job. Output of any other state is
// never decoded.
func Decode(job *Job, declared audio.Format) (Audio, error) {
	if job == nil {
		return Audio{}, fmt.Errorf("%w: no job to decode", ErrProtocol)
	}

	if job.Status != StatusCompleted {
		return Audio{}, fmt.Errorf("%w: job %s is %s, not %s", ErrProtocol, job.ID, job.Status, StatusCompleted)
	}

	var output map[string]json.RawMessage

	if len(job.Output) == 0 || json.Unmarshal(job.Output, &output) != nil {
		return Audio{}, fmt.Errorf("%w: job %s output is not an object", ErrDecode, job.ID)
	}

	var nested map[string]json.RawMessage
	if raw, ok := output[fieldNested]; ok {
		_ = json.Unmarshal(raw, &nested)
	}

	if encoded := stringField(output, fieldAudioBase64); encoded != "" {
		return decodeInline(encoded, declared)
	}

	if encoded := stringField(nested, fieldAudioBase64); encoded != "" {
		return decodeInline(encoded, declared)
	}

	if link := stringField(output, fieldAudioURL); link != "" {
		return remoteAudio(link, declared), nil
	}

	if link := stringField(nested, fieldAudioURL); link != "" {
		return remoteAudio(link, declared), nil
	}

	if serviceErr := firstNonEmpty(stringField(output, fieldError), stringField(nested, fieldError)); serviceErr != "" {
		return Audio{}, fmt.Errorf("%w: job %s: %s", ErrDecode, job.ID, serviceErr)
	}

	return Audio{}, fmt.Errorf("%w: job %s", ErrDecode, job.ID)
}

func decodeInline(encoded string, declared audio.Format) (Audio, error) {
	data, err := decodeBase64(encoded)
	if err != nil {
		return Audio{}, fmt.Errorf("%w: malformed base64 audio: %w", ErrDecode, err)
	}

	if len(data) == 0 {
		return Audio{}, fmt.Errorf("%w: empty audio payload", ErrDecode)
	}

	format := audio.Resolve(data, declared)

	return Audio{
		Data:     data,
		Format:   format,
		MIMEType: format.MIMEType(),
	}, nil
}

func remoteAudio(link string, declared audio.Format) Audio {
	return Audio{
		URL:      link,
		Format:   declared,
		MIMEType: declared.MIMEType(),
	}
}

// decodeBase64 accepts standard, unpadded and URL-safe encodings, with or
// without a data: URI prefix.
func decodeBase64(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if idx := strings.Index(encoded, ";base64,"); strings.HasPrefix(encoded, "data:") && idx >= 0 {
		encoded = encoded[idx+len(";base64,"):]
	}

	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}

	var firstErr error

	for _, encoding := range encodings {
		data, err := encoding.DecodeString(encoded)
		if err == nil {
			return data, nil
		}

		if firstErr == nil {
			firstErr = err
		}
	}

	return nil, firstErr
}

func stringField(object map[string]json.RawMessage, name string) string {
	raw, ok := object[name]
	if !ok {
		return ""
	}

	var value string
	if json.Unmarshal(raw, &value) != nil {
		return ""
	}

	return value
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}

	return ""
}
