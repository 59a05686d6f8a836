package overlay

import (
	"fmt"
	"maps"
	"strings"
)

// Style is the visual treatment of a detection box.
type Style struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Palette entries a class may map to.
var Palette = map[string]Style{
	"alert-red":     {Name: "alert-red", Color: "#FF453A"},
	"info-blue":     {Name: "info-blue", Color: "#0A84FF"},
	"warn-orange":   {Name: "warn-orange", Color: "#FF9500"},
	"success-green": {Name: "success-green", Color: "#30D158"},
}

// StyleTable maps lower-cased detection classes to styles. The zero value
// styles everything with the fallback.
type StyleTable struct {
	classes  map[string]Style
	fallback Style
}

// DefaultStyles returns the stock class taxonomy.
func DefaultStyles() StyleTable {
	t := StyleTable{classes: map[string]Style{}, fallback: Palette["success-green"]}
	for class, name := range map[string]string{
		"person":  "alert-red",
		"human":   "alert-red",
		"vehicle": "info-blue",
		"car":     "info-blue",
		"animal":  "warn-orange",
		"dog":     "warn-orange",
		"cat":     "warn-orange",
	} {
		t.classes[class] = Palette[name]
	}
	return t
}

// With returns a copy of t where class uses the named palette entry.
func (t StyleTable) With(class, palette string) (StyleTable, error) {
	st, ok := Palette[palette]
	if !ok {
		return t, fmt.Errorf("unknown palette entry %q for class %q", palette, class)
	}
	out := StyleTable{classes: maps.Clone(t.classes), fallback: t.fallback}
	if out.classes == nil {
		out.classes = map[string]Style{}
	}
	if out.fallback == (Style{}) {
		out.fallback = Palette["success-green"]
	}
	out.classes[strings.ToLower(class)] = st
	return out, nil
}

// Lookup returns the style for class, falling back to the default style.
func (t StyleTable) Lookup(class string) Style {
	if st, ok := t.classes[strings.ToLower(class)]; ok {
		return st
	}
	if t.fallback == (Style{}) {
		return Palette["success-green"]
	}
	return t.fallback
}
