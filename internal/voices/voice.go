// Package voices builds the list of voices a user can generate with: a fixed
// set of presets plus whatever the inference service reports as uploaded.
package voices

import "github.com/book-expert/voice-studio/internal/config"

// Descriptions shown next to each voice.
const (
	DescriptionPreset = "Preset Voice"
	DescriptionCloud  = "Cloud Voice"
)

// Voice is one selectable reference voice.
type Voice struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Description string `json:"description"`
	PreviewURL  string `json:"preview_url,omitempty"`
}

// DefaultPresets returns the built-in preset voices. The ids are the folder
// names of the reference audio on the service and must not be corrected.
func DefaultPresets() []Voice {
	return []Voice{
		{ID: "Donal Trump", DisplayName: "Donald Trump", Description: DescriptionPreset},
		{ID: "Brian", DisplayName: "Brian", Description: DescriptionPreset},
		{ID: "Mark", DisplayName: "Mark", Description: DescriptionPreset},
		{ID: "Adame", DisplayName: "Adam", Description: DescriptionPreset},
		{ID: "andreas", DisplayName: "Andreas", Description: DescriptionPreset},
		{ID: "trump", DisplayName: "Trump (Alt)", Description: DescriptionPreset},
	}
}

// PresetsFromConfig returns the configured presets, or DefaultPresets when
// none are configured.
func PresetsFromConfig(cfg config.VoicesConfig) []Voice {
	if len(cfg.Presets) == 0 {
		return DefaultPresets()
	}

	presets := make([]Voice, 0, len(cfg.Presets))

	for _, preset := range cfg.Presets {
		if preset.ID == "" {
			continue
		}

		voice := Voice{
			ID:          preset.ID,
			DisplayName: preset.Name,
			Description: preset.Description,
			PreviewURL:  preset.PreviewURL,
		}

		if voice.DisplayName == "" {
			voice.DisplayName = voice.ID
		}

		if voice.Description == "" {
			voice.Description = DescriptionPreset
		}

		presets = append(presets, voice)
	}

	return presets
}

// Merge returns presets followed by the remote voices whose id is not used
// yet. The result never contains two voices with the same id, and merging
// the same remote list twice yields the same result.
func Merge(presets, remote []Voice) []Voice {
	merged := make([]Voice, 0, len(presets)+len(remote))
	seen := make(map[string]struct{}, len(presets)+len(remote))

	for _, group := range [][]Voice{presets, remote} {
		for _, voice := range group {
			if _, dup := seen[voice.ID]; dup || voice.ID == "" {
				continue
			}

			seen[voice.ID] = struct{}{}
			merged = append(merged, voice)
		}
	}

	return merged
}
