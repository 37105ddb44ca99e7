package repo

import (
	"fmt"
	"strconv"
	"strings"
)

// NextSequenceID returns prefix followed by a zero-padded number one greater
// than the largest trailing number found among ids. Ids without a trailing
// number are ignored.
//
// Two writers that read the same collection compute the same id; callers
// must generate and append within one Table.Update.
func NextSequenceID(prefix string, width int, ids []string) string {
	max := 0
	for _, id := range ids {
		if n, ok := trailingNumber(id); ok && n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s%0*d", prefix, width, max+1)
}

func trailingNumber(s string) (int, bool) {
	end := len(s)
	start := strings.LastIndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) + 1
	if start >= end {
		return 0, false
	}
	n, err := strconv.Atoi(s[start:end])
	if err != nil {
		return 0, false
	}
	return n, true
}
