package generator

import (
	"fmt"
	"sort"
	"strings"

	"paprika/stylize"
)

// DefaultStyle is the preset used when none is configured.
const DefaultStyle = "paprika"

// Preset describes one pretrained AnimeGANv2 configuration.
type Preset struct {
	// Name is the style identifier ("paprika", "face_paint_512_v2", ...).
	Name string
	// ModelFile is the ONNX weights file name resolved through the model cache.
	ModelFile string
	// Description is shown by `paprika models list`.
	Description string
	// Prompt drives the image-edit request of the remote backends.
	Prompt string
}

var presets = map[string]Preset{
	"paprika": {
		Name:        "paprika",
		ModelFile:   "paprika.onnx",
		Description: "Satoshi Kon's Paprika palette, tuned for full scenes",
		Prompt: "Redraw this photo as a frame from the 2006 anime film Paprika by Satoshi Kon: " +
			"saturated warm palette, clean cel shading, soft painted backgrounds. " +
			"Keep the exact composition, framing and subjects.",
	},
	"celeba_distill": {
		Name:        "celeba_distill",
		ModelFile:   "celeba_distill.onnx",
		Description: "Distilled face model trained on CelebA portraits",
		Prompt: "Redraw this portrait as a soft anime character illustration with smooth skin shading " +
			"and large expressive eyes. Keep the pose, framing and background layout.",
	},
	"face_paint_512_v1": {
		Name:        "face_paint_512_v1",
		ModelFile:   "face_paint_512_v1.onnx",
		Description: "Face portrait model, stronger stylization",
		Prompt: "Repaint this portrait as a bold hand-painted anime face with strong outlines " +
			"and flat color regions. Keep the pose and framing.",
	},
	"face_paint_512_v2": {
		Name:        "face_paint_512_v2",
		ModelFile:   "face_paint_512_v2.onnx",
		Description: "Face portrait model, better identity preservation",
		Prompt: "Repaint this portrait in a gentle anime style that preserves the person's identity, " +
			"with painted highlights and soft cel shading. Keep the pose and framing.",
	},
}

// LookupPreset returns the preset for name. Names are case-insensitive.
func LookupPreset(name string) (Preset, error) {
	p, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q (available: %s)", stylize.ErrUnknownStyle, name, strings.Join(PresetNames(), ", "))
	}
	return p, nil
}

// PresetNames returns all preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Presets returns all presets sorted by name.
func Presets() []Preset {
	names := PresetNames()
	out := make([]Preset, 0, len(names))
	for _, name := range names {
		out = append(out, presets[name])
	}
	return out
}
