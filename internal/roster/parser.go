package roster

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ParseWarning reports that no field could be recognized in a text. The
// record is still produced, with every field empty.
type ParseWarning struct {
	Index int
}

func (w *ParseWarning) Error() string {
	return fmt.Sprintf("no roster fields recognized for record %d", w.Index)
}

// fieldPattern anchors a value on its in-game label. The first submatch is
// the value.
type fieldPattern struct {
	column string
	re     *regexp.Regexp
}

// Label patterns for the Korean profile card. Free-text values run to the
// next space; counters are digits only.
var fieldPatterns = []fieldPattern{
	{ColNickname, regexp.MustCompile(`닉네임\s*(\S+)`)},
	{ColRole, regexp.MustCompile(`직책\s*(\S+)`)},
	{ColFaction, regexp.MustCompile(`문파\s*(\S+)`)},
	{ColDaysSinceJoin, regexp.MustCompile(`가입\s*일수\s*(\d+\s*일)`)},
	{ColWeeklyActivity, regexp.MustCompile(`이번\s*주\s*활약도\s*(\d+)`)},
	{ColMartialRealm, regexp.MustCompile(`무공\s*경지\s*([\d.]+\S*)`)},
	{ColExplorationSkill, regexp.MustCompile(`탐색\s*숙련도\s*(\d+)`)},
	{ColTechMastery, regexp.MustCompile(`기술\s*조예\s*(\d+)`)},
}

// NormalizeText composes Hangul (NFC), collapses whitespace runs to one space
// and trims the ends.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(norm.NFC.String(text)), " ")
}

// Parse extracts the fixed fields from OCR text and returns them as a record
// with the given index. Fields without a match are "". When nothing matched
// at all, a *ParseWarning accompanies the (empty) record.
//
// Parameters:
//   - text: The accepted OCR text for one screenshot. It is NFC-normalized
//     and whitespace-collapsed before matching.
//   - index: The record index to assign.
//
// Returns:
//   - Record: The extracted fields. Extras is always empty.
//   - *ParseWarning: Non-nil only when no fixed field matched. The record is
//     still usable and may be stored.
//
// Extraction is label-anchored and therefore sensitive to layout changes in
// the game client.
func Parse(text string, index int) (Record, *ParseWarning) {
	normalized := NormalizeText(text)

	rec := Record{Index: index, Extras: NewExtras()}
	for _, p := range fieldPatterns {
		m := p.re.FindStringSubmatch(normalized)
		if m == nil {
			continue
		}
		// Only fixed text columns are listed, so SetField cannot fail
		_ = rec.SetField(p.column, strings.TrimSpace(m[1]))
	}

	if rec.Empty() {
		return rec, &ParseWarning{Index: index}
	}
	return rec, nil
}
