package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/siherrmann/biograph/helper"
	"github.com/siherrmann/biograph/model"
)

// mentionWindowRunes bounds the text kept around a recognized name.
const mentionWindowRunes = 120

// NERExtractor creates an extraction stage backed by a local NER model
// instead of the LLM collaborator. Uses distilbert-NER token classification
// and keeps only person spans. The local model cannot read off birth dates,
// aliases or links, so candidates carry just the name and its mention window
// and the remaining stages work from that.
func NERExtractor() (ExtractFunc, error) {
	// Prepare model (download if needed)
	modelName := "KnightsAnalytics/distilbert-NER"
	modelPath, err := helper.PrepareModel(modelName, "model.onnx")
	if err != nil {
		return nil, err
	}

	// Initialize hugot session with Go backend
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	// Create token classification pipeline for NER
	config := hugot.TokenClassificationConfig{
		ModelPath: modelPath,
		Name:      "mention-ner-pipeline",
		Options: []hugot.TokenClassificationOption{
			pipelines.WithSimpleAggregation(),
			pipelines.WithIgnoreLabels([]string{"O"}), // Ignore non-entity tokens
		},
	}
	nerPipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create NER pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create NER pipeline: %w", err)
	}

	return func(ctx context.Context, document *model.Document) ([]*model.Candidate, error) {
		content := strings.TrimSpace(document.Content)
		if content == "" {
			return []*model.Candidate{}, nil
		}

		result, err := nerPipeline.RunPipeline([]string{content})
		if err != nil {
			return nil, fmt.Errorf("failed to run NER: %w", err)
		}
		if len(result.Entities) == 0 {
			return []*model.Candidate{}, nil
		}

		var candidates []*model.Candidate
		for _, span := range result.Entities[0] {
			if normalizeEntityType(span.Entity) != "PER" {
				continue
			}
			name := strings.TrimSpace(span.Word)
			if name == "" {
				continue
			}

			candidates = append(candidates, &model.Candidate{
				Name:       name,
				Mention:    mentionAround(content, name),
				Confidence: float64(span.Score),
			})
		}
		return foldCandidates(candidates), nil
	}, nil
}

// normalizeEntityType removes B- and I- prefixes from NER labels
func normalizeEntityType(label string) string {
	// Remove BIO tagging prefixes (B- for beginning, I- for inside)
	if strings.HasPrefix(label, "B-") {
		return label[2:]
	}
	if strings.HasPrefix(label, "I-") {
		return label[2:]
	}
	return label
}

// mentionAround returns the text surrounding the first occurrence of the
// name, bounded to mentionWindowRunes on each side.
func mentionAround(content string, name string) string {
	index := strings.Index(content, name)
	if index < 0 {
		return name
	}

	runes := []rune(content)
	nameRunes := []rune(name)
	runeIndex := len([]rune(content[:index]))

	start := runeIndex - mentionWindowRunes
	if start < 0 {
		start = 0
	}
	end := runeIndex + len(nameRunes) + mentionWindowRunes
	if end > len(runes) {
		end = len(runes)
	}
	return strings.TrimSpace(string(runes[start:end]))
}
