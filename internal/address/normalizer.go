// Package address derives stable grouping keys and display building names
// from free-text Korean listing addresses.
//
// Both functions are heuristics built from ordered regex passes. They never
// fail: malformed input yields a best-effort string.
package address

import (
	"regexp"
	"sort"
	"strings"
)

// Unit-level tokens removed from an address before grouping. Order matters:
// basement floors must go before plain floors, and unit numbers before the
// letter-prefixed code pass so "B-301호" is consumed whole.
var stripPasses = []*regexp.Regexp{
	// 지하1층, 지하 2 층, B1층, b2 층
	regexp.MustCompile(`(?:지하|[Bb])\s*\d+\s*층`),
	// 반지하, 옥탑, bare 지하
	regexp.MustCompile(`반지하|옥탑방?|지하층?`),
	// 3층, 12 층
	regexp.MustCompile(`\d+\s*층`),
	// 3F, 12f as a standalone token
	regexp.MustCompile(`(?:^|\s)\d+[Ff](?:\s|$)`),
	// 501호, 1203 호, 501호실
	regexp.MustCompile(`[A-Za-z]?-?\d+\s*호실?`),
	// 24세대, 8 가구
	regexp.MustCompile(`\d+\s*(?:세대|가구)`),
	// A-302, B1203, c12 as a standalone token
	regexp.MustCompile(`(?:^|\s)[A-Za-z]-?\d{1,4}(?:\s|$)`),
	// separators left dangling at the end
	regexp.MustCompile(`[\s,.\-/]+$`),
}

// GroupingKey strips floor, unit, household-count and unit-code tokens and
// collapses whitespace. Two addresses that differ only in floor or unit
// produce the same key, and GroupingKey(GroupingKey(a)) == GroupingKey(a).
func GroupingKey(addr string) string {
	key := collapse(addr)
	// Removing one token can expose another (e.g. "3층 501호" shares a space),
	// so repeat until nothing changes.
	for {
		next := key
		for _, re := range stripPasses {
			next = re.ReplaceAllString(next, " ")
		}
		next = collapse(next)
		if next == key {
			return key
		}
		key = next
	}
}

// Tokens returns the first n whitespace tokens of the collapsed address
func Tokens(addr string, n int) []string {
	fields := strings.Fields(addr)
	if len(fields) > n {
		fields = fields[:n]
	}
	return fields
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// brandVocabulary holds apartment, officetel and villa brands plus generic
// building-type words commonly found in listing addresses.
var brandVocabulary = []string{
	"래미안", "자이", "푸르지오", "힐스테이트", "아이파크", "e편한세상", "이편한세상",
	"롯데캐슬", "더샵", "센트레빌", "아크로", "데시앙", "하늘채", "스위첸", "꿈에그린",
	"위브", "두산위브", "서희스타힐스", "호반베르디움", "트리마제", "시그니엘",
	"오피스텔", "아파트", "빌라", "맨션", "타워", "하이츠", "캐슬", "팰리스",
	"레지던스", "빌딩", "하우스", "스테이", "리빙텔", "원룸텔", "쉐르빌", "파크뷰",
}

var (
	reBrand      = compileVocabulary(brandVocabulary)
	reWingNumber = regexp.MustCompile(`(?:^|\s)(\d+(?:-\d+)?)\s*동`)
	reLotNumber  = regexp.MustCompile(`^(?:산\s*)?\d+(?:-\d+)?$`)
)

// compileVocabulary builds an alternation that prefers the longest token,
// capturing the whole word that contains it plus an optional trailing
// alphanumeric qualifier ("래미안 2차", "자이 B"). A qualifier directly
// followed by 동/호/층 is a unit designator, not part of the name.
func compileVocabulary(words []string) *regexp.Regexp {
	sorted := make([]string, len(words))
	copy(sorted, words)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len([]rune(sorted[i])) > len([]rune(sorted[j]))
	})
	quoted := make([]string, len(sorted))
	for i, w := range sorted {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(\S*?(?:` + strings.Join(quoted, "|") + `)\S*)(\s?[0-9A-Za-z]+차?)?(동|호|층)?`)
}

// BuildingName extracts a human-readable building name. It tries, in order:
// a known brand or building-type word, a "<n>[-<m>]동" wing designator, the
// leading lot number, and finally the address itself.
func BuildingName(addr string) string {
	addr = collapse(addr)
	if addr == "" {
		return ""
	}

	if m := reBrand.FindStringSubmatch(addr); m != nil {
		name := m[1]
		if m[2] != "" && m[3] == "" {
			name += m[2]
		}
		return strings.TrimSpace(name)
	}

	if m := reWingNumber.FindStringSubmatch(addr); m != nil {
		return m[1] + "동"
	}

	for _, tok := range strings.Fields(addr) {
		if reLotNumber.MatchString(tok) {
			return tok
		}
	}

	return addr
}
