package reconcile

import (
	"lyrics-sync-go/utils"
)

// BigramSimilarity returns the Dice coefficient of the character bigrams of a
// and b after folding case, width and whitespace. The result is in [0, 1].
func BigramSimilarity(a, b string) float64 {
	ra := []rune(utils.FoldText(a))
	rb := []rune(utils.FoldText(b))

	if len(ra) < 2 || len(rb) < 2 {
		if len(ra) > 0 && string(ra) == string(rb) {
			return 1
		}
		return 0
	}

	counts := make(map[[2]rune]int, len(ra)-1)
	for i := 0; i+1 < len(ra); i++ {
		counts[[2]rune{ra[i], ra[i+1]}]++
	}

	overlap := 0
	for i := 0; i+1 < len(rb); i++ {
		key := [2]rune{rb[i], rb[i+1]}
		if counts[key] > 0 {
			counts[key]--
			overlap++
		}
	}

	return 2 * float64(overlap) / float64(len(ra)-1+len(rb)-1)
}
