package model

// Palette lists the colour tags a routine may carry.
var Palette = []string{
    "slate", "gray", "zinc", "neutral", "stone",
    "red", "orange", "amber", "yellow", "lime", "green", "emerald", "teal",
    "cyan", "sky", "blue", "indigo", "violet", "purple", "fuchsia", "pink", "rose",
}

// DefaultColor is used when a routine is created without a valid colour.
const DefaultColor = "blue"

var paletteSet = func() map[string]bool {
    m := make(map[string]bool, len(Palette))
    for _, c := range Palette {
        m[c] = true
    }
    return m
}()

// ValidColor reports whether c is in Palette.
func ValidColor(c string) bool { return paletteSet[c] }

// ColorOrDefault returns c when valid and DefaultColor otherwise.
func ColorOrDefault(c string) string {
    if ValidColor(c) {
        return c
    }
    return DefaultColor
}
