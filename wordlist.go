package main

import "math/rand"

// baseWords are the candidate letter sets for word hunt rounds. Long-ish
// words with common letters so each round has plenty of findable subwords.
var baseWords = []string{
	"relationship",
	"butterflies",
	"candlelight",
	"handwritten",
	"photographs",
	"valentines",
	"wanderlust",
	"moonlighting",
	"sweethearts",
	"caterpillar",
	"strawberries",
	"adventurous",
	"celebration",
	"planetarium",
	"watermelons",
	"thunderstorm",
	"housewarming",
	"marshmallows",
	"honeymooners",
	"springtime",
}

func pickBaseWord(rng *rand.Rand) string {
	return baseWords[rng.Intn(len(baseWords))]
}
