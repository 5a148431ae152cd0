package devserver

import "math/rand"

// Default word pool for the drawing game. Rooms pick three distinct choices
// per turn.
var wordPool = []string{
	"apple", "banana", "bridge", "camera", "candle", "castle", "cloud",
	"dragon", "elephant", "forest", "guitar", "hammer", "island", "jacket",
	"kangaroo", "ladder", "lantern", "mirror", "mountain", "notebook",
	"octopus", "penguin", "pirate", "pyramid", "rainbow", "robot", "rocket",
	"sandwich", "snowman", "spider", "submarine", "telescope", "tiger",
	"tornado", "turtle", "umbrella", "violin", "volcano", "whale", "wizard",
}

// pickWordChoices returns n distinct words from the pool, at least one.
func pickWordChoices(n int) []string {
	idx := rand.Perm(len(wordPool))
	if n < 1 {
		n = 1
	}
	if n > len(idx) {
		n = len(idx)
	}
	choices := make([]string, 0, n)
	for _, i := range idx[:n] {
		choices = append(choices, wordPool[i])
	}
	return choices
}
