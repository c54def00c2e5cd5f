// Package roomname makes memorable room IDs for members who start a new
// room without naming it.
package roomname

import (
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

var adjectives = []string{
	"tiny", "happy", "sleepy", "fluffy", "sparkly", "cheery", "jolly", "cozy", "shiny", "golden",
	"silver", "crimson", "emerald", "bright", "gentle", "brave", "calm", "swift", "quiet", "merry",
}

var creatures = []string{
	"kitten", "panda", "koala", "fox", "otter", "hedgehog", "beaver", "narwhal", "penguin", "toucan",
	"dragon", "griffin", "phoenix", "gnome", "sprite", "pixie", "unicorn", "heron", "lynx", "badger",
}

var things = []string{
	"pancake", "waffle", "ramen", "dumpling", "biscuit", "muffin", "toffee", "lantern", "pebble", "comet",
	"nebula", "canyon", "meadow", "willow", "ember", "marble", "thimble", "rocket", "orbit", "breeze",
}

// Words is the number of words in a generated name.
const Words = 3

const maxAttempts = 64

var ErrExhausted = errors.New("no free room name found")

// Generate returns a name like "sleepy-otter-waffle". taken reports names
// already in use; nil accepts the first draw. After maxAttempts taken
// draws it gives up with ErrExhausted.
func Generate(taken func(string) bool) (string, error) {
	lists := [Words][]string{adjectives, creatures, things}
	for range maxAttempts {
		parts := make([]string, 0, Words)
		for _, list := range lists {
			parts = append(parts, list[randomIndex(len(list))])
		}
		name := strings.Join(parts, "-")
		if taken == nil || !taken(name) {
			return name, nil
		}
	}
	return "", ErrExhausted
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		panic("roomname: reading random source: " + err.Error())
	}
	return int(n.Int64())
}
