// Package colors generates default widget colors.
package colors

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Saturation and lightness ranges (percent, half-open) that keep tiles
// readable on a dark background.
const (
	minSaturation  = 65
	saturationSpan = 20
	minLightness   = 55
	lightnessSpan  = 15
)

// Generator produces random pastel colors. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator returns a Generator seeded with seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{rnd: rand.New(rand.NewSource(seed))}
}

var defaultGenerator = NewGenerator(time.Now().UnixNano())

// Pastel returns a random pastel color from the process-wide generator.
func Pastel() string {
	return defaultGenerator.Pastel()
}

// Pastel returns a random "#rrggbb" color.
func (g *Generator) Pastel() string {
	g.mu.Lock()
	hue := g.rnd.Intn(360)
	sat := g.rnd.Intn(saturationSpan) + minSaturation
	light := g.rnd.Intn(lightnessSpan) + minLightness
	g.mu.Unlock()
	return HSLToHex(float64(hue), float64(sat)/100, float64(light)/100)
}

// HSLToHex converts hue (degrees) and saturation/lightness (0..1) to "#rrggbb".
func HSLToHex(h, s, l float64) string {
	a := s * math.Min(l, 1-l)
	channel := func(n float64) int {
		k := math.Mod(n+h/30, 12)
		v := l - a*math.Max(-1, math.Min(k-3, math.Min(9-k, 1)))
		return int(math.Round(v * 255))
	}
	return fmt.Sprintf("#%02x%02x%02x", channel(0), channel(8), channel(4))
}
