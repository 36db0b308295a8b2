// Package reconcile compares the outputs of the two OCR backends and decides
// whether they agree closely enough to accept without human review.
package reconcile

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/unicode/norm"
)

// DefaultThreshold is the similarity score at or above which two readings
// are considered a match.
const DefaultThreshold = 85.0

// Result is the outcome of comparing two OCR readings of the same image.
type Result struct {
	PrimaryText   string `json:"primary_text"`
	SecondaryText string `json:"secondary_text"`
	IsMatch       bool   `json:"is_match"`

	// SimilarityScore is in [0, 100]; 100 means identical.
	SimilarityScore float64 `json:"similarity_score"`

	// ChosenText is the accepted text, or nil while the result is unresolved.
	ChosenText *string `json:"chosen_text"`
}

// Resolved reports whether a text has been chosen.
func (r Result) Resolved() bool {
	return r.ChosenText != nil
}

// Chosen returns the accepted text and whether there is one.
func (r Result) Chosen() (string, bool) {
	if r.ChosenText == nil {
		return "", false
	}
	return *r.ChosenText, true
}

// Compare scores primary against secondary and auto-accepts primary when the
// score reaches threshold. A mismatch leaves ChosenText nil for review.
//
// Parameters:
//   - primary: Text from the primary (Tesseract) engine.
//   - secondary: Text from the secondary (neural) engine.
//   - threshold: Minimum SimilarityScore, in [0, 100], for an automatic
//     match. A score equal to threshold matches.
//
// Returns:
//   - Result: The score and both texts. ChosenText points at primary when
//     IsMatch is true and is nil otherwise.
//
// Both texts are NFC-normalized before scoring so composed and decomposed
// Hangul compare equal; the Result keeps the texts as given.
func Compare(primary, secondary string, threshold float64) Result {
	score := Similarity(primary, secondary)
	res := Result{
		PrimaryText:     primary,
		SecondaryText:   secondary,
		SimilarityScore: score,
		IsMatch:         score >= threshold,
	}
	if res.IsMatch {
		chosen := primary
		res.ChosenText = &chosen
	}
	return res
}

// Similarity returns 100 * (1 - d/m) where d is the rune-level Levenshtein
// distance between a and b and m is the longer rune length. Two empty
// strings score 100.
func Similarity(a, b string) float64 {
	a = norm.NFC.String(a)
	b = norm.NFC.String(b)

	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 100
	}

	dist := levenshtein.ComputeDistance(a, b)
	return 100 * (1 - float64(dist)/float64(longest))
}
