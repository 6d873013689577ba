package loader

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontMatterFence = "---"

type frontMatter struct {
	Title string    `yaml:"title"`
	Tags  yaml.Node `yaml:"tags"`
}

// splitFrontMatter separates a leading YAML block fenced by "---" lines
// from the body. Text without a fence is returned unchanged.
func splitFrontMatter(text string) (frontMatter, string, error) {
	var fm frontMatter
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	if !strings.HasPrefix(normalized, frontMatterFence+"\n") {
		return fm, text, nil
	}

	rest := normalized[len(frontMatterFence)+1:]
	end := strings.Index(rest, "\n"+frontMatterFence)
	if end < 0 {
		return fm, text, nil
	}
	block := rest[:end]
	body := rest[end+len(frontMatterFence)+1:]
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}

	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return fm, text, fmt.Errorf("parse front matter: %w", err)
	}
	return fm, body, nil
}

// tags accepts a YAML list or a comma-separated string.
func (fm frontMatter) tags() []string {
	var raw []string
	switch fm.Tags.Kind {
	case yaml.SequenceNode:
		for _, n := range fm.Tags.Content {
			raw = append(raw, n.Value)
		}
	case yaml.ScalarNode:
		raw = strings.Split(fm.Tags.Value, ",")
	}

	var tags []string
	seen := map[string]bool{}
	for _, t := range raw {
		// Commas would break the comma-joined metadata encoding.
		t = strings.TrimSpace(strings.ReplaceAll(t, ",", " "))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	return tags
}
