package policy

import (
	"crypto/rand"
	"errors"
	"math/big"
)

const (
	lowerRunes = "abcdefghijklmnopqrstuvwxyz"
	upperRunes = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitRunes = "0123456789"
)

// Suggest generates a random password of the given length that satisfies
// the composition rules: at least one character from each required class,
// the remainder drawn from the combined alphabet, then shuffled. All
// randomness comes from the system CSPRNG.
func (e *Engine) Suggest(length int) (string, error) {
	if length < e.config.MinLength {
		length = e.config.MinLength
	}
	if length > e.config.MaxLength {
		return "", errors.New("suggested length exceeds maximum")
	}
	if length < 4 {
		return "", errors.New("suggested length cannot cover all character classes")
	}

	out := make([]byte, 0, length)

	for _, class := range []string{lowerRunes, upperRunes, digitRunes, SpecialCharacters} {
		c, err := pickByte(class)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	combined := lowerRunes + upperRunes + digitRunes + SpecialCharacters
	for len(out) < length {
		c, err := pickByte(combined)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}

	if err := secureShuffle(out); err != nil {
		return "", err
	}

	return string(out), nil
}

func pickByte(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, err
	}
	return alphabet[n.Int64()], nil
}

// secureShuffle is a Fisher-Yates shuffle driven by crypto/rand.
func secureShuffle(b []byte) error {
	for i := len(b) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return err
		}
		j := n.Int64()
		b[i], b[j] = b[j], b[i]
	}
	return nil
}
