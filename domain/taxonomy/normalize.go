package taxonomy

import (
	"sort"
	"strings"
	"unicode"
)

// SimilarityThreshold is the edit-distance similarity at or above which two
// folded names are treated as the same term.
const SimilarityThreshold = 0.88

// Normalize merges proposals into one canonical taxonomy. The result depends
// only on the multiset of proposals, never on their order.
func Normalize(proposals []Proposal) Taxonomy {
	sorted := make([]Proposal, len(proposals))
	copy(sorted, proposals)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].clusterID < sorted[j].clusterID })

	categories := newMerger()
	tags := newMerger()
	for _, p := range sorted {
		categories.add(p.category, "")
		for _, t := range p.tags {
			tags.add(t.name, t.description)
		}
	}
	categoryTerms, categoryOf := categories.resolve()
	tagTerms, tagOf := tags.resolve()

	subcategories := map[string]*merger{}
	for _, p := range sorted {
		cat, ok := categoryOf[Fold(p.category)]
		if !ok {
			continue
		}
		m := subcategories[cat]
		if m == nil {
			m = newMerger()
			subcategories[cat] = m
		}
		m.add(p.subcategory, "")
	}

	resultCategories := make([]Category, 0, len(categoryTerms))
	for _, term := range categoryTerms {
		var subs []string
		if m := subcategories[term.name]; m != nil {
			resolved, _ := m.resolve()
			for _, s := range resolved {
				subs = append(subs, s.name)
			}
		}
		resultCategories = append(resultCategories, NewCategory(term.name, subs))
	}

	resultTags := make([]Tag, 0, len(tagTerms))
	for _, term := range tagTerms {
		resultTags = append(resultTags, NewTag(term.name, term.description))
	}

	clusterTags := map[int][]string{}
	for _, p := range sorted {
		seen := map[string]struct{}{}
		for _, existing := range clusterTags[p.clusterID] {
			seen[existing] = struct{}{}
		}
		for _, t := range p.tags {
			name, ok := tagOf[Fold(t.name)]
			if !ok {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			clusterTags[p.clusterID] = append(clusterTags[p.clusterID], name)
		}
	}

	return NewTaxonomy(resultCategories, resultTags, clusterTags)
}

// Fold lowercases s and collapses every run of non-alphanumerics to one
// space, so "Web-Dev" and "web dev" fold to the same key.
func Fold(s string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
			continue
		}
		space = true
	}
	return b.String()
}

// stem folds s and singularizes each token.
func stem(folded string) []string {
	tokens := strings.Fields(folded)
	for i, t := range tokens {
		tokens[i] = singular(t)
	}
	return tokens
}

func singular(t string) string {
	switch {
	case len(t) > 4 && strings.HasSuffix(t, "ies"):
		return t[:len(t)-3] + "y"
	case strings.HasSuffix(t, "sses"),
		strings.HasSuffix(t, "ches"),
		strings.HasSuffix(t, "shes"),
		strings.HasSuffix(t, "xes"):
		return t[:len(t)-2]
	case len(t) > 3 && strings.HasSuffix(t, "s") &&
		!strings.HasSuffix(t, "ss") &&
		!strings.HasSuffix(t, "us") &&
		!strings.HasSuffix(t, "is"):
		return t[:len(t)-1]
	}
	return t
}

// nearDuplicate reports whether two folded keys name the same term.
func nearDuplicate(a, b string) bool {
	sa, sb := stem(a), stem(b)
	ja, jb := strings.Join(sa, " "), strings.Join(sb, " ")
	if ja == jb {
		return true
	}
	if abbreviates(sa, sb) {
		return true
	}
	return similarity(ja, jb) >= SimilarityThreshold
}

// abbreviates matches token-wise prefixes such as "web dev" and "web
// development": same token count, at least one identical token, and every
// other pair a prefix of at least three letters.
func abbreviates(a, b []string) bool {
	if len(a) != len(b) || len(a) < 2 {
		return false
	}
	identical := 0
	for i := range a {
		x, y := a[i], b[i]
		if x == y {
			identical++
			continue
		}
		if len(x) > len(y) {
			x, y = y, x
		}
		if len(x) < 3 || !strings.HasPrefix(y, x) {
			return false
		}
	}
	return identical > 0
}

// similarity is 1 - levenshtein(a,b)/max(len(a),len(b)).
func similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

type term struct {
	name        string
	description string
}

// merger collects spellings grouped by folded key.
type merger struct {
	spellings    map[string]map[string]int
	descriptions map[string]map[string]int
}

func newMerger() *merger {
	return &merger{
		spellings:    map[string]map[string]int{},
		descriptions: map[string]map[string]int{},
	}
}

func (m *merger) add(name, description string) {
	name = strings.Join(strings.Fields(name), " ")
	key := Fold(name)
	if key == "" {
		return
	}
	if m.spellings[key] == nil {
		m.spellings[key] = map[string]int{}
		m.descriptions[key] = map[string]int{}
	}
	m.spellings[key][name]++
	if d := strings.TrimSpace(description); d != "" {
		m.descriptions[key][d]++
	}
}

// resolve groups near-duplicate keys, picks each group's canonical spelling
// and returns the terms sorted by name together with a folded-key lookup.
func (m *merger) resolve() ([]term, map[string]string) {
	keys := make([]string, 0, len(m.spellings))
	for k := range m.spellings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parent := make([]int, len(keys))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := range keys {
		for j := i + 1; j < len(keys); j++ {
			if nearDuplicate(keys[i], keys[j]) {
				ri, rj := find(i), find(j)
				if ri < rj {
					parent[rj] = ri
				} else if rj < ri {
					parent[ri] = rj
				}
			}
		}
	}

	groups := map[int][]string{}
	for i, k := range keys {
		root := find(i)
		groups[root] = append(groups[root], k)
	}

	lookup := make(map[string]string, len(keys))
	terms := make([]term, 0, len(groups))
	for _, members := range groups {
		spellings := map[string]int{}
		descriptions := map[string]int{}
		for _, k := range members {
			for s, n := range m.spellings[k] {
				spellings[s] += n
			}
			for d, n := range m.descriptions[k] {
				descriptions[d] += n
			}
		}
		name := pick(spellings)
		for _, k := range members {
			lookup[k] = name
		}
		terms = append(terms, term{name: name, description: pick(descriptions)})
	}

	sort.Slice(terms, func(i, j int) bool {
		li, lj := strings.ToLower(terms[i].name), strings.ToLower(terms[j].name)
		if li != lj {
			return li < lj
		}
		return terms[i].name < terms[j].name
	})
	return terms, lookup
}

// pick returns the most frequent variant, then the longest, then the
// lexicographically smallest.
func pick(variants map[string]int) string {
	best, bestCount := "", 0
	for v, n := range variants {
		switch {
		case n > bestCount,
			n == bestCount && len(v) > len(best),
			n == bestCount && len(v) == len(best) && v < best:
			best, bestCount = v, n
		}
	}
	return best
}
