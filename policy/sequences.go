package policy

import "strings"

// Known layouts a sequential run can be drawn from algorithmically:
// keyboard rows, the alphabet, and the digit line. Matching is
// case-insensitive and covers reversed runs.
var sequenceSources = []string{
	"abcdefghijklmnopqrstuvwxyz",
	"0123456789",
	"qwertyuiop",
	"asdfghjkl",
	"zxcvbnm",
	"1234567890",
}

// hasSequentialRun reports whether password contains a run of runLen or more
// characters that appear consecutively (forward or reversed) in any known
// sequence source.
func hasSequentialRun(password string, runLen int) bool {
	if len(password) < runLen {
		return false
	}
	lowered := strings.ToLower(password)

	for i := 0; i+runLen <= len(lowered); i++ {
		window := lowered[i : i+runLen]
		for _, source := range sequenceSources {
			if strings.Contains(source, window) || strings.Contains(source, reverse(window)) {
				return true
			}
		}
	}
	return false
}

// hasRepeatedRun reports whether any character repeats runLen or more times
// consecutively.
func hasRepeatedRun(password string, runLen int) bool {
	runes := []rune(password)
	if len(runes) < runLen {
		return false
	}

	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= runLen {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

func reverse(s string) string {
	runes := []rune(s)
	for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
		runes[i], runes[j] = runes[j], runes[i]
	}
	return string(runes)
}
