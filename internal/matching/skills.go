package matching

import (
	"strings"

	"github.com/spigell/jobhunter/internal/profile"
	"github.com/spigell/jobhunter/internal/textsim"
)

const (
	requiredWeight    = 1.0
	niceToHaveWeight  = 0.5
	maxProficiency    = 5.0
	maxMissingToQuote = 5
)

var skillAliases = map[string]string{
	"golang":     "go",
	"k8s":        "kubernetes",
	"postgres":   "postgresql",
	"js":         "javascript",
	"ts":         "typescript",
	"csharp":     "c#",
	"py":         "python",
	"gcp":        "google cloud",
	"tf":         "terraform",
	"dotnet":     "net",
	"reactjs":    "react",
	"nodejs":     "node",
	"cplusplus":  "c++",
	"amazon aws": "aws",
}

// techVocabulary is used to derive requirements from the description when a
// posting does not itemise them.
var techVocabulary = []string{
	"python", "javascript", "typescript", "java", "go", "rust", "c++", "c#",
	"sql", "react", "vue", "angular", "node", "express", "django", "flask",
	"fastapi", "aws", "azure", "google cloud", "docker", "kubernetes", "git", "linux",
	"postgresql", "mongodb", "redis", "elasticsearch", "graphql", "rest api",
	"microservices", "agile", "scrum", "ci cd", "jenkins", "terraform", "kafka",
	"net", "sql server", "cosmosdb", "jira",
}

// skillItem is one requirement or nice-to-have line of a posting.
type skillItem struct {
	text     string
	tokens   map[string]bool
	weight   float64
	required bool
}

type skillMatch struct {
	item  skillItem
	skill *profile.Skill
}

// tokens folds text and applies aliases, producing a token set. Multi-word
// aliases are applied on the joined form.
func tokens(text string) map[string]bool {
	folded := textsim.Fold(text)
	for from, to := range skillAliases {
		if strings.Contains(from, " ") && strings.Contains(folded, from) {
			folded = strings.ReplaceAll(folded, from, to)
		}
	}

	set := make(map[string]bool)
	for _, w := range strings.Fields(folded) {
		if alias, ok := skillAliases[w]; ok {
			for _, a := range strings.Fields(alias) {
				set[a] = true
			}
			continue
		}
		set[w] = true
	}
	return set
}

func containsAll(set map[string]bool, words map[string]bool) bool {
	if len(words) == 0 {
		return false
	}
	for w := range words {
		if !set[w] {
			return false
		}
	}
	return true
}

// extractRequirements returns the vocabulary terms present in a description.
func extractRequirements(description string) []string {
	if strings.TrimSpace(description) == "" {
		return nil
	}
	desc := tokens(description)
	var found []string
	for _, term := range techVocabulary {
		if containsAll(desc, tokens(term)) {
			found = append(found, term)
		}
	}
	return found
}

func buildItems(requirements, niceToHaves []string) []skillItem {
	items := make([]skillItem, 0, len(requirements)+len(niceToHaves))
	for _, r := range requirements {
		if strings.TrimSpace(r) == "" {
			continue
		}
		items = append(items, skillItem{text: r, tokens: tokens(r), weight: requiredWeight, required: true})
	}
	for _, n := range niceToHaves {
		if strings.TrimSpace(n) == "" {
			continue
		}
		items = append(items, skillItem{text: n, tokens: tokens(n), weight: niceToHaveWeight})
	}
	return items
}

// bestSkill finds the profile skill with the highest proficiency whose name
// is fully contained in the item.
func bestSkill(item skillItem, skills []profile.Skill) *profile.Skill {
	var best *profile.Skill
	for i := range skills {
		s := &skills[i]
		if !containsAll(item.tokens, tokens(s.Name)) {
			continue
		}
		if best == nil || s.Proficiency > best.Proficiency {
			best = s
		}
	}
	return best
}

func matchItems(items []skillItem, skills []profile.Skill) []skillMatch {
	out := make([]skillMatch, 0, len(items))
	for _, item := range items {
		out = append(out, skillMatch{item: item, skill: bestSkill(item, skills)})
	}
	return out
}

// skillScore weights each item by importance and credits it by proficiency:
// a missing requirement costs twice what a missing nice-to-have costs, and a
// proficiency-5 match earns five times a proficiency-1 match.
func skillScore(matches []skillMatch) float64 {
	var credit, total float64
	for _, m := range matches {
		total += m.item.weight
		if m.skill != nil {
			credit += m.item.weight * float64(m.skill.Proficiency) / maxProficiency
		}
	}
	if total == 0 {
		return 0
	}
	return credit / total * 100
}
