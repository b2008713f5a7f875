package bridge

import "fmt"

// Ratio is a crop aspect ratio. The zero Ratio means free cropping.
type Ratio struct {
	Width  int
	Height int
}

// Free reports whether r leaves the crop window unconstrained.
func (r Ratio) Free() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Preset is a labelled aspect ratio offered to the user.
type Preset struct {
	Label string
	Ratio Ratio
}

var presets = []Preset{
	{"Free", Ratio{}},
	{"Square (1:1)", Ratio{1, 1}},
	{"4:3", Ratio{4, 3}},
	{"3:4", Ratio{3, 4}},
	{"16:9", Ratio{16, 9}},
	{"9:16", Ratio{9, 16}},
	{"3:2", Ratio{3, 2}},
	{"2:3", Ratio{2, 3}},
	{"5:4", Ratio{5, 4}},
	{"4:5", Ratio{4, 5}},
	{"Instagram Portrait (4:5)", Ratio{4, 5}},
	{"Instagram Landscape (1.91:1)", Ratio{191, 100}},
	{"Facebook Cover (16:9)", Ratio{16, 9}},
	{"Twitter Header (3:1)", Ratio{3, 1}},
}

// Presets returns the built-in aspect ratio presets.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// Label names r using the first matching preset in list, falling back to
// the built-in presets when list is nil and to "w:h" when nothing matches.
func Label(r Ratio, list []Preset) string {
	if list == nil {
		list = presets
	}
	if r.Free() {
		return "Free"
	}
	for _, p := range list {
		if p.Ratio == r {
			return p.Label
		}
	}
	return fmt.Sprintf("%d:%d", r.Width, r.Height)
}

// Lookup returns the preset with the given label.
func Lookup(label string, list []Preset) (Preset, bool) {
	if list == nil {
		list = presets
	}
	for _, p := range list {
		if p.Label == label {
			return p, true
		}
	}
	return Preset{}, false
}
