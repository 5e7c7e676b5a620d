package pipeline

import (
	"github.com/siherrmann/biograph/llm"
)

// DefaultStructurer returns the structuring stage backed by the Anthropic
// client.
func DefaultStructurer(client *llm.Client) StructureFunc {
	return client.StructureCandidate
}
