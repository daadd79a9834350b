package assembly_test

import (
	"os"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeStereo48k writes frames of stereo 48kHz audio with channels 100 and 200.
func writeStereo48k(t *testing.T, path string, frames int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	data := make([]int, frames*2)
	for i := 0; i < frames; i++ {
		data[2*i] = 100
		data[2*i+1] = 200
	}
	enc := wav.NewEncoder(f, 48000, 16, 2, 1)
	if err := enc.Write(&audio.IntBuffer{Data: data, Format: &audio.Format{SampleRate: 48000, NumChannels: 2}, SourceBitDepth: 16}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}
