package crawler

import (
	"strings"
	"unicode"
)

// Lexicon category names, in scoring order.
const (
	CategoryEmotionalValidation   = "emotional_validation"
	CategoryActiveListening       = "active_listening"
	CategorySupportiveLanguage    = "supportive_language"
	CategorySolutionOriented      = "solution_oriented"
	CategoryEmotionalIntelligence = "emotional_intelligence"
)

// Categories lists the lexicon categories in a fixed order so scoring and
// reporting stay deterministic.
var Categories = []string{
	CategoryEmotionalValidation,
	CategoryActiveListening,
	CategorySupportiveLanguage,
	CategorySolutionOriented,
	CategoryEmotionalIntelligence,
}

// lexicons holds the fixed phrase sets per category. Single words match on
// word boundaries, multi-word phrases match as substrings. Each phrase
// counts at most once per category regardless of repetition.
var lexicons = map[string][]string{
	CategoryEmotionalValidation: {
		"understand", "hard", "difficult", "valid", "tough", "painful",
		"makes sense", "going through", "that sucks", "understandable",
		"okay to feel", "not your fault",
	},
	CategoryActiveListening: {
		"listen", "listening", "sounds like", "i hear you", "tell me more",
		"thank you for sharing", "what happened", "how are you feeling",
	},
	CategorySupportiveLanguage: {
		"not alone", "here for you", "support", "care about", "proud of you",
		"you got this", "stay strong", "rooting for", "be kind to yourself",
		"sending hugs", "wish you the best",
	},
	CategorySolutionOriented: {
		"suggest", "recommend", "advice", "maybe you could",
		"have you considered", "might help", "one option", "reach out to",
		"talk to a", "small steps", "worth trying",
	},
	CategoryEmotionalIntelligence: {
		"feel", "feeling", "feelings", "emotions", "empathize", "relate",
		"been there", "i went through", "experience", "perspective",
		"from your point of view",
	},
}

// scoreText counts distinct lexicon phrase matches in text per category.
// Matching is case-insensitive. Categories with zero matches are omitted
// from the result.
func scoreText(text string) (hits map[string]int, total int) {
	lowered := strings.ToLower(text)
	hits = make(map[string]int)

	for _, category := range Categories {
		count := 0
		for _, phrase := range lexicons[category] {
			if matchPhrase(lowered, phrase) {
				count++
			}
		}
		if count > 0 {
			hits[category] = count
			total += count
		}
	}
	return hits, total
}

// matchPhrase reports whether phrase occurs in lowered text. Multi-word
// phrases match anywhere; single words only match between word boundaries,
// so "hard" does not fire on "hardware".
func matchPhrase(lowered, phrase string) bool {
	if strings.ContainsRune(phrase, ' ') {
		return strings.Contains(lowered, phrase)
	}

	idx := 0
	for {
		rel := strings.Index(lowered[idx:], phrase)
		if rel < 0 {
			return false
		}
		start := idx + rel
		end := start + len(phrase)
		if wordBoundary(lowered, start-1) && wordBoundary(lowered, end) {
			return true
		}
		idx = start + 1
	}
}

func wordBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	r := rune(s[i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
