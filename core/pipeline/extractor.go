package pipeline

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/siherrmann/biograph/llm"
	"github.com/siherrmann/biograph/model"
)

// defaultWindowRunes bounds the text handed to the extraction collaborator in
// a single call.
const defaultWindowRunes = 12000

// DefaultExtractor returns the extraction stage backed by the Anthropic
// client.
func DefaultExtractor(client *llm.Client) ExtractFunc {
	return client.ExtractCandidates
}

// WindowedExtractor wraps an extractor so long documents are extracted in
// windows split at line boundaries. Candidates found in several windows are
// folded by name with their links and raw attributes merged.
func WindowedExtractor(extract ExtractFunc, maxRunes int) ExtractFunc {
	if maxRunes <= 0 {
		maxRunes = defaultWindowRunes
	}

	return func(ctx context.Context, document *model.Document) ([]*model.Candidate, error) {
		content := strings.TrimSpace(document.Content)
		if content == "" {
			return []*model.Candidate{}, nil
		}
		if utf8.RuneCountInString(content) <= maxRunes {
			return extract(ctx, document)
		}

		var all []*model.Candidate
		for _, window := range splitWindows(content, maxRunes) {
			windowDocument := *document
			windowDocument.Content = window

			candidates, err := extract(ctx, &windowDocument)
			if err != nil {
				return nil, err
			}
			all = append(all, candidates...)
		}
		return foldCandidates(all), nil
	}
}

// splitWindows packs lines into windows of at most maxRunes. A single line
// longer than the bound is hard split.
func splitWindows(content string, maxRunes int) []string {
	var windows []string
	var current []string
	currentLen := 0

	flush := func() {
		if len(current) > 0 {
			windows = append(windows, strings.Join(current, "\n"))
			current = nil
			currentLen = 0
		}
	}

	for _, line := range strings.Split(content, "\n") {
		lineLen := utf8.RuneCountInString(line)

		if lineLen > maxRunes {
			flush()
			runes := []rune(line)
			for start := 0; start < len(runes); start += maxRunes {
				end := start + maxRunes
				if end > len(runes) {
					end = len(runes)
				}
				windows = append(windows, string(runes[start:end]))
			}
			continue
		}

		if currentLen+lineLen > maxRunes {
			flush()
		}
		current = append(current, line)
		currentLen += lineLen + 1
	}
	flush()

	return windows
}

// foldCandidates merges candidates sharing a name, keeping the first mention
// and the highest confidence.
func foldCandidates(candidates []*model.Candidate) []*model.Candidate {
	seen := map[string]*model.Candidate{}
	out := make([]*model.Candidate, 0, len(candidates))

	for _, candidate := range candidates {
		key := strings.ToLower(strings.TrimSpace(candidate.Name))
		if key == "" {
			continue
		}

		existing, ok := seen[key]
		if !ok {
			seen[key] = candidate
			out = append(out, candidate)
			continue
		}

		if candidate.Confidence > existing.Confidence {
			existing.Confidence = candidate.Confidence
		}
		for _, link := range candidate.Links {
			existing.Links = appendLink(existing.Links, link)
		}
		for attr, value := range candidate.RawAttributes {
			if _, ok := existing.RawAttributes[attr]; !ok {
				if existing.RawAttributes == nil {
					existing.RawAttributes = map[string]string{}
				}
				existing.RawAttributes[attr] = value
			}
		}
	}
	return out
}

func appendLink(links []model.Link, link model.Link) []model.Link {
	for _, existing := range links {
		if strings.EqualFold(existing.Target, link.Target) {
			return links
		}
	}
	return append(links, link)
}
