package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/helixml/taxon/domain/taxonomy"
)

var errNoTags = errors.New("no tags in response")

// proposalJSON is the generation format asked for by proposalTaskPrompt.
type proposalJSON struct {
	Category    string    `json:"category"`
	Subcategory string    `json:"subcategory"`
	Tags        []tagJSON `json:"tags"`
}

// tagJSON accepts both {"name": "...", "description": "..."} and a bare
// string.
type tagJSON struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (t *tagJSON) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		t.Name = name
		return nil
	}
	type plain tagJSON
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*t = tagJSON(p)
	return nil
}

func parseProposal(clusterID int, text string) (taxonomy.Proposal, error) {
	var raw proposalJSON
	if err := json.Unmarshal([]byte(extractJSON(text)), &raw); err != nil {
		return taxonomy.Proposal{}, malformed(fmt.Errorf("parse proposal: %w", err))
	}

	tags := make([]taxonomy.TagProposal, 0, len(raw.Tags))
	for _, t := range raw.Tags {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			continue
		}
		tags = append(tags, taxonomy.NewTagProposal(name, strings.TrimSpace(t.Description)))
	}
	if len(tags) == 0 {
		return taxonomy.Proposal{}, malformed(errNoTags)
	}
	return taxonomy.NewProposal(clusterID,
		strings.TrimSpace(raw.Category),
		strings.TrimSpace(raw.Subcategory),
		tags,
	), nil
}

func parseRefinement(text string) ([]string, error) {
	var raw struct {
		Tags []tagJSON `json:"tags"`
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), &raw); err != nil {
		return nil, malformed(fmt.Errorf("parse refinement: %w", err))
	}
	names := make([]string, 0, len(raw.Tags))
	for _, t := range raw.Tags {
		if name := strings.TrimSpace(t.Name); name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

// extractJSON returns the first balanced JSON object in text, skipping
// code fences or prose around it.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return text[start:]
}

func truncate(text string, maxRunes int) string {
	r := []rune(strings.TrimSpace(text))
	if maxRunes <= 0 || len(r) <= maxRunes {
		return string(r)
	}
	return string(r[:maxRunes]) + "…"
}
