package tts

import (
	"strconv"
	"strings"

	"subvoice/internal/config"
)

// VoiceProfile is the voice and prosody used for every segment of a run.
type VoiceProfile struct {
	Voice  string
	Rate   int // percent
	Volume int // percent
	Pitch  int // Hz
}

// ProfileFromConfig builds the run's voice profile from configuration.
func ProfileFromConfig(cfg *config.Config) VoiceProfile {
	if cfg == nil {
		return VoiceProfile{Voice: config.DefaultVoice()}
	}
	return VoiceProfile{
		Voice:  cfg.Voice.Name,
		Rate:   cfg.Voice.Rate,
		Volume: cfg.Voice.Volume,
		Pitch:  cfg.Voice.Pitch,
	}
}

// RateArg renders the rate as the backend expects it, e.g. "+0%" or "-10%".
func (v VoiceProfile) RateArg() string { return signed(v.Rate) + "%" }

// VolumeArg renders the volume, e.g. "+20%".
func (v VoiceProfile) VolumeArg() string { return signed(v.Volume) + "%" }

// PitchArg renders the pitch offset, e.g. "+5Hz".
func (v VoiceProfile) PitchArg() string { return signed(v.Pitch) + "Hz" }

func (v VoiceProfile) String() string {
	return strings.Join([]string{v.Voice, v.RateArg(), v.VolumeArg(), v.PitchArg()}, " ")
}

func signed(n int) string {
	if n < 0 {
		return strconv.Itoa(n)
	}
	return "+" + strconv.Itoa(n)
}
