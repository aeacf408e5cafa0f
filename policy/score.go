package policy

import (
	"math"
	"strings"
)

// Character-class sizes used for the entropy estimate.
const (
	lowerClassSize   = 26
	upperClassSize   = 26
	digitClassSize   = 10
	specialClassSize = 32
)

type characterClasses struct {
	lower   bool
	upper   bool
	digit   bool
	special bool
}

type scorePenalties struct {
	sequential bool
	repeated   bool
	common     bool
}

func classifyCharacters(password string) characterClasses {
	var c characterClasses
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			c.lower = true
		case r >= 'A' && r <= 'Z':
			c.upper = true
		case r >= '0' && r <= '9':
			c.digit = true
		case strings.ContainsRune(SpecialCharacters, r):
			c.special = true
		}
	}
	return c
}

func (c characterClasses) charsetSize() int {
	size := 0
	if c.lower {
		size += lowerClassSize
	}
	if c.upper {
		size += upperClassSize
	}
	if c.digit {
		size += digitClassSize
	}
	if c.special {
		size += specialClassSize
	}
	return size
}

// score computes the advisory 0-100 strength value: additive length tiers
// and class-presence points, a Shannon-style entropy bonus, and flat
// penalties for pattern findings. Monotonically non-decreasing in length
// for a fixed class mix.
func (e *Engine) score(password string, classes characterClasses, penalties scorePenalties) int {
	length := len([]rune(password))
	score := 0

	if length >= 8 {
		score += 10
	}
	if length >= 12 {
		score += 10
	}
	if length >= 16 {
		score += 10
	}

	if classes.lower {
		score += 10
	}
	if classes.upper {
		score += 10
	}
	if classes.digit {
		score += 10
	}
	if classes.special {
		score += 15
	}

	if charset := classes.charsetSize(); charset > 1 && length > 0 {
		// Scaled down so the entropy term stays a bonus instead of
		// saturating the scale on its own.
		entropy := float64(length) * math.Log2(float64(charset))
		score += int(entropy / 4)
	}

	if penalties.sequential {
		score -= 10
	}
	if penalties.repeated {
		score -= 10
	}
	if penalties.common {
		score -= 25
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
