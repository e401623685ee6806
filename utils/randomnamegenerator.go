package utils

import (
	"math/rand"
	"strings"

	"github.com/Pallinder/go-randomdata"
)

// RandomNameGenerator hands out unique lowercase resource-style names.
// Deterministic across runs, which keeps generated fixtures stable.
type RandomNameGenerator map[string]struct{}

func (rng *RandomNameGenerator) RandomName() string {
	if *rng == nil {
		*rng = make(map[string]struct{})
		randomdata.CustomRand(rand.New(rand.NewSource(0)))
	}
	for {
		name := strings.ToLower(randomdata.SillyName())
		if len(name) > 16 {
			name = name[:16]
		}
		if _, exists := (*rng)[name]; !exists {
			(*rng)[name] = struct{}{}
			return name
		}
	}
}
