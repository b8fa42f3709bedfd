package ai

import (
	"unicode"

	"honeypot-lab/internal/domain/models"
)

// hinglishWords are romanized Hindi function words common in mixed messages
var hinglishWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"hai", "hain", "nahi", "kya", "kaise", "kahan", "kaun", "kyun", "bhai",
		"ji", "mera", "meri", "mere", "tera", "teri", "tere", "aapka", "aapki",
		"yeh", "woh", "abhi", "bolo", "batao", "karo", "karna", "hona", "raha",
		"rahi", "rahe", "toh", "bhi", "aur", "par", "lekin", "pehle", "baad",
		"mein", "ko", "ka", "ki", "ke", "se", "pe", "ne", "sir", "madam",
		"arrey", "theek", "accha", "haan", "nahin", "chahiye", "dijiye", "dena",
		"lena", "jaana", "aana", "paisa", "rupee", "lakh", "crore", "sahib",
		"beta", "beti", "didi", "uncle", "aunty", "sahab",
	} {
		hinglishWords[w] = struct{}{}
	}
}

// MinHinglishWords is the number of distinct vernacular words that flips the register
const MinHinglishWords = 2

// DetectRegister guesses whether text is plain English or Hinglish. Any
// Devanagari rune, or two distinct romanized Hindi words, means Hinglish.
func DetectRegister(text string) models.Register {
	for _, r := range text {
		if unicode.Is(unicode.Devanagari, r) {
			return models.RegisterHinglish
		}
	}

	hits := make(map[string]struct{})
	for _, w := range Tokenize(text) {
		if _, ok := hinglishWords[w]; ok {
			hits[w] = struct{}{}
			if len(hits) >= MinHinglishWords {
				return models.RegisterHinglish
			}
		}
	}
	return models.RegisterEnglish
}
