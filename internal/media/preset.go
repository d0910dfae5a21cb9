package media

import (
	"errors"
	"fmt"
	"sort"
)

var ErrUnknownPreset = errors.New("unknown quality preset")

const DefaultPreset = "high"

// Preset caps the outgoing media of every session.
type Preset struct {
	Name         string
	Label        string
	Width        int
	Height       int
	FrameRate    float64
	VideoBitrate int // bits per second
	AudioBitrate int // bits per second
}

var presets = map[string]Preset{
	"low":    {Name: "low", Label: "Low (360p)", Width: 640, Height: 360, FrameRate: 15, VideoBitrate: 400_000, AudioBitrate: 32_000},
	"medium": {Name: "medium", Label: "Medium (540p)", Width: 960, Height: 540, FrameRate: 24, VideoBitrate: 1_000_000, AudioBitrate: 64_000},
	"high":   {Name: "high", Label: "High (720p)", Width: 1280, Height: 720, FrameRate: 30, VideoBitrate: 2_500_000, AudioBitrate: 128_000},
	"hd":     {Name: "hd", Label: "Full HD (1080p)", Width: 1920, Height: 1080, FrameRate: 30, VideoBitrate: 4_000_000, AudioBitrate: 128_000},
}

// Lookup returns the named preset. An empty name means DefaultPreset.
func Lookup(name string) (Preset, error) {
	if name == "" {
		name = DefaultPreset
	}
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownPreset, name)
	}
	return p, nil
}

// Presets lists every preset from lowest to highest bitrate.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VideoBitrate < out[j].VideoBitrate })
	return out
}
