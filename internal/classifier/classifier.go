// Package classifier maps free-text occupations to risk groups.
package classifier

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/opensource-finance/regtools/internal/domain"
)

// Keyword lists. Matching is substring containment on normalized text, so
// compound phrases ("chef d'entreprise") and inflections ("retraitée") match.
var (
	RetiredKeywords = []string{"retraité", "retraite"}

	LowKeywords = []string{
		"élève", "étudiant", "sans profession", "sans emploi", "chômeur",
		"femme au foyer", "travailleur indépendant",
	}

	HighKeywords = []string{
		"pm", "chef d'entreprise", "chef dentreprise", "dirigeant", "directeur général",
		"gérant", "profession libérale", "avocat", "notaire", "médecin", "pharmacien",
		"architecte", "expert comptable", "homme politique", "personnalité politique",
		"député", "ministre", "ambassadeur",
	}

	// MediumKeywords only name the default group; they never change the result.
	MediumKeywords = []string{"salarié", "fonctionnaire", "employé", "ouvrier"}
)

type keywordGroup struct {
	group    domain.RiskGroup
	keywords []string
}

// priority is the fixed evaluation order. The first list with a hit wins.
var priority = []keywordGroup{
	{domain.RiskGroupRetired, normalizeAll(RetiredKeywords)},
	{domain.RiskGroupLow, normalizeAll(LowKeywords)},
	{domain.RiskGroupHigh, normalizeAll(HighKeywords)},
	{domain.RiskGroupMedium, normalizeAll(MediumKeywords)},
}

// Classify returns the risk group for an occupation. Unknown or empty text
// resolves to medium.
func Classify(occupation string) domain.RiskGroup {
	group, _ := Match(occupation)
	return group
}

// Match is Classify that also returns the normalized keyword that decided the
// group. The keyword is empty when the default applied.
func Match(occupation string) (domain.RiskGroup, string) {
	text := Normalize(occupation)
	if text == "" {
		return domain.RiskGroupMedium, ""
	}
	for _, kg := range priority {
		for _, kw := range kg.keywords {
			if strings.Contains(text, kw) {
				return kg.group, kw
			}
		}
	}
	return domain.RiskGroupMedium, ""
}

// Normalize lowercases s, strips combining diacritical marks after canonical
// decomposition and folds typographic apostrophes.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'").Replace(out)
	return strings.TrimSpace(strings.ToLower(out))
}

func normalizeAll(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		out = append(out, Normalize(kw))
	}
	return out
}
