package pipeline

import (
	"github.com/siherrmann/biograph/llm"
)

// DefaultClassifier returns the classification stage backed by the Anthropic
// client.
func DefaultClassifier(client *llm.Client) ClassifyFunc {
	return client.ClassifyCandidate
}
