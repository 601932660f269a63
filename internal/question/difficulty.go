package question

import (
	"fmt"
	"strings"
)

// Difficulty is the tier a question is tagged with.
type Difficulty string

const (
	Easy   Difficulty = "EASY"
	Medium Difficulty = "MEDIUM"
	Hard   Difficulty = "HARD"
)

// Difficulties lists all tiers from easiest to hardest.
var Difficulties = []Difficulty{Easy, Medium, Hard}

// ParseDifficulty parses a tier name case-insensitively.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToUpper(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
	return d, nil
}

// Valid reports whether d is one of the known tiers.
func (d Difficulty) Valid() bool {
	return d.Rank() >= 0
}

// Rank returns 0 for EASY, 1 for MEDIUM, 2 for HARD and -1 otherwise.
func (d Difficulty) Rank() int {
	switch d {
	case Easy:
		return 0
	case Medium:
		return 1
	case Hard:
		return 2
	}
	return -1
}

// Harder returns the next tier up, or d itself at HARD.
func (d Difficulty) Harder() Difficulty {
	r := d.Rank()
	if r < 0 || r == len(Difficulties)-1 {
		return d
	}
	return Difficulties[r+1]
}

// Easier returns the next tier down, or d itself at EASY.
func (d Difficulty) Easier() Difficulty {
	r := d.Rank()
	if r <= 0 {
		return d
	}
	return Difficulties[r-1]
}

// Label returns the lower-case tier name used in prompts and UI.
func (d Difficulty) Label() string {
	return strings.ToLower(string(d))
}
