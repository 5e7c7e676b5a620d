package resolver

import (
	"testing"

	"github.com/google/uuid"
	"github.com/siherrmann/biograph/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func personAttributes(name string, year int, locality string) *model.StructuredAttributes {
	attrs := &model.StructuredAttributes{
		Name:     name,
		Locality: locality,
		Confidence: model.FieldConfidence{
			model.FieldName:     0.9,
			model.FieldBorn:     0.9,
			model.FieldLocality: 0.8,
		},
	}
	if year != 0 {
		attrs.Born = &model.BirthDate{Year: year}
	}
	return attrs
}

func TestNormalizeKey(t *testing.T) {
	t.Run("Lowercases and collapses whitespace", func(t *testing.T) {
		assert.Equal(t, "ada lovelace", NormalizeKey("  Ada   Lovelace "))
	})

	t.Run("Strips punctuation", func(t *testing.T) {
		assert.Equal(t, "augusta ada king countess of lovelace", NormalizeKey("Augusta Ada King, Countess of Lovelace"))
	})

	t.Run("Removes diacritics", func(t *testing.T) {
		assert.Equal(t, "marie curie", NormalizeKey("Marie Curié"))
	})

	t.Run("Empty input produces empty key", func(t *testing.T) {
		assert.Equal(t, "", NormalizeKey("  .,  "))
	})
}

func TestResolve(t *testing.T) {
	t.Run("Creates a new candidate entity", func(t *testing.T) {
		resolver := NewResolver(2)
		docRID := uuid.New()

		resolution, err := resolver.Resolve(personAttributes("Ada Lovelace", 1815, "London"), docRID)

		require.NoError(t, err, "Expected resolve to not return an error")
		assert.Equal(t, OutcomeCreated, resolution.Outcome, "Expected a new entity")
		assert.Equal(t, "Ada Lovelace", resolution.Entity.Name)
		assert.Equal(t, model.StatusCandidate, resolution.Entity.Status)
		assert.Equal(t, []uuid.UUID{docRID}, resolution.Entity.Provenance)
		assert.Empty(t, resolution.Entity.Attributes.Name, "Expected the canonical name to live on the entity only")
		assert.Equal(t, 1, resolver.Count())
	})

	t.Run("Merges by name and year and promotes at the threshold", func(t *testing.T) {
		resolver := NewResolver(2)
		docA := uuid.New()
		docB := uuid.New()

		first, err := resolver.Resolve(personAttributes("Ada Lovelace", 1815, "London"), docA)
		require.NoError(t, err)
		require.Equal(t, OutcomeCreated, first.Outcome)

		second, err := resolver.Resolve(personAttributes("Ada Lovelace", 1815, ""), docB)
		require.NoError(t, err)

		assert.Equal(t, OutcomeMerged, second.Outcome, "Expected the second mention to merge")
		assert.True(t, second.Promoted, "Expected promotion at two provenance documents")
		assert.Equal(t, model.StatusConfirmed, second.Entity.Status)
		assert.Equal(t, []uuid.UUID{docA, docB}, second.Entity.Provenance)
		assert.Equal(t, "London", second.Entity.Attributes.Locality, "Expected the known locality to survive the merge")
		assert.Equal(t, 1, resolver.Count(), "Expected a single entity")
	})

	t.Run("Resolving the same candidate twice changes nothing", func(t *testing.T) {
		resolver := NewResolver(2)
		docRID := uuid.New()
		attrs := personAttributes("Ada Lovelace", 1815, "London")

		_, err := resolver.Resolve(attrs, docRID)
		require.NoError(t, err)
		once := resolver.Snapshot()

		resolution, err := resolver.Resolve(attrs, docRID)
		require.NoError(t, err)
		twice := resolver.Snapshot()

		assert.Equal(t, OutcomeMerged, resolution.Outcome)
		assert.False(t, resolution.Promoted, "Expected no promotion from a repeated document")
		assert.Equal(t, once, twice, "Expected an identical index after re-resolving")
		require.Len(t, twice, 1)
		assert.Len(t, twice[0].Provenance, 1, "Expected no duplicated provenance")
	})

	t.Run("Keeps distinct people sharing a name apart", func(t *testing.T) {
		resolver := NewResolver(2)

		first, err := resolver.Resolve(personAttributes("John Smith", 1650, ""), uuid.New())
		require.NoError(t, err)
		second, err := resolver.Resolve(personAttributes("John Smith", 1820, ""), uuid.New())
		require.NoError(t, err)

		assert.Equal(t, OutcomeCreated, second.Outcome, "Expected a second entity for a different birth year")
		assert.NotEqual(t, first.Entity.ID, second.Entity.ID)
		assert.Equal(t, model.StatusCandidate, first.Entity.Status)
		assert.Equal(t, model.StatusCandidate, second.Entity.Status)
		assert.NotEqual(t, first.Entity.Provenance, second.Entity.Provenance, "Expected no shared provenance")
		assert.Equal(t, 2, resolver.Count())
	})

	t.Run("Ambiguous candidate goes to review", func(t *testing.T) {
		resolver := NewResolver(2)
		_, err := resolver.Resolve(personAttributes("John Smith", 1650, ""), uuid.New())
		require.NoError(t, err)
		_, err = resolver.Resolve(personAttributes("John Smith", 1820, ""), uuid.New())
		require.NoError(t, err)

		docRID := uuid.New()
		resolution, err := resolver.Resolve(personAttributes("John Smith", 0, ""), docRID)

		require.NoError(t, err)
		assert.Equal(t, OutcomeAmbiguous, resolution.Outcome, "Expected a yearless John Smith to be ambiguous")
		assert.Equal(t, model.StatusNeedsReview, resolution.Entity.Status)
		assert.Len(t, resolution.Matched, 2, "Expected both entities to be referenced")
		assert.ElementsMatch(t, resolution.Matched, resolution.Entity.ReviewRefs)
		assert.Equal(t, ReasonAmbiguousMatch, resolution.Entity.Metadata[MetadataReviewReason])
		assert.Equal(t, 3, resolver.Count(), "Expected the existing entities to stay untouched")

		// The same ambiguous candidate again reuses the review entity.
		repeated, err := resolver.Resolve(personAttributes("John Smith", 0, ""), docRID)
		require.NoError(t, err)
		assert.Equal(t, resolution.Entity.ID, repeated.Entity.ID, "Expected no duplicate review entity")
		assert.Equal(t, 3, resolver.Count())
	})

	t.Run("Matches through an alias", func(t *testing.T) {
		resolver := NewResolver(3)
		attrs := personAttributes("Ada Lovelace", 1815, "")
		attrs.Aliases = []string{"Ada King"}
		created, err := resolver.Resolve(attrs, uuid.New())
		require.NoError(t, err)

		resolution, err := resolver.Resolve(personAttributes("Ada King", 0, ""), uuid.New())

		require.NoError(t, err)
		assert.Equal(t, OutcomeMerged, resolution.Outcome, "Expected the alias to match")
		assert.Equal(t, created.Entity.ID, resolution.Entity.ID)
	})

	t.Run("Equal confidence disagreement records a conflict", func(t *testing.T) {
		resolver := NewResolver(3)
		docA := uuid.New()
		docB := uuid.New()

		_, err := resolver.Resolve(personAttributes("Ada Lovelace", 1815, "London"), docA)
		require.NoError(t, err)

		resolution, err := resolver.Resolve(personAttributes("Ada Lovelace", 1815, "Paris"), docB)

		require.NoError(t, err)
		assert.Equal(t, OutcomeMerged, resolution.Outcome)
		assert.True(t, resolution.Conflicted, "Expected the differing locality to conflict")
		assert.Equal(t, "London", resolution.Entity.Attributes.Locality, "Expected the first value to be kept")
		require.Len(t, resolution.Entity.Conflicts, 1)
		assert.Equal(t, model.FieldLocality, resolution.Entity.Conflicts[0].Field)
		assert.Equal(t, "Paris", resolution.Entity.Conflicts[0].Value)
		assert.Equal(t, docB, resolution.Entity.Conflicts[0].DocumentRID)
		assert.Equal(t, model.StatusCandidate, resolution.Entity.Status, "Expected the entity to stay active")
	})

	t.Run("Higher confidence value wins without a conflict", func(t *testing.T) {
		resolver := NewResolver(3)
		weak := personAttributes("Ada Lovelace", 1815, "Paris")
		weak.Confidence[model.FieldLocality] = 0.3
		_, err := resolver.Resolve(weak, uuid.New())
		require.NoError(t, err)

		resolution, err := resolver.Resolve(personAttributes("Ada Lovelace", 1815, "London"), uuid.New())

		require.NoError(t, err)
		assert.False(t, resolution.Conflicted)
		assert.Equal(t, "London", resolution.Entity.Attributes.Locality, "Expected the higher confidence locality")
		assert.Empty(t, resolution.Entity.Conflicts)
	})

	t.Run("Agreeing dates refine to the higher precision", func(t *testing.T) {
		resolver := NewResolver(3)
		_, err := resolver.Resolve(personAttributes("Ada Lovelace", 1815, ""), uuid.New())
		require.NoError(t, err)

		precise := personAttributes("Ada Lovelace", 0, "")
		precise.Born = &model.BirthDate{Year: 1815, Month: 12, Day: 10}
		resolution, err := resolver.Resolve(precise, uuid.New())

		require.NoError(t, err)
		assert.False(t, resolution.Conflicted, "Expected agreement, not a conflict")
		require.NotNil(t, resolution.Entity.Attributes.Born)
		assert.Equal(t, "1815-12-10", resolution.Entity.Attributes.Born.String())
	})

	t.Run("Alias owned by a confirmed entity is not stolen", func(t *testing.T) {
		resolver := NewResolver(2)
		_, err := resolver.Resolve(personAttributes("Ada Lovelace", 1815, ""), uuid.New())
		require.NoError(t, err)
		confirmed, err := resolver.Resolve(personAttributes("Ada Lovelace", 1815, ""), uuid.New())
		require.NoError(t, err)
		require.Equal(t, model.StatusConfirmed, confirmed.Entity.Status)

		_, err = resolver.Resolve(personAttributes("Augusta Byron", 1788, ""), uuid.New())
		require.NoError(t, err)

		claiming := personAttributes("Augusta Byron", 1788, "")
		claiming.Aliases = []string{"Ada Lovelace"}
		resolution, err := resolver.Resolve(claiming, uuid.New())

		require.NoError(t, err)
		assert.Equal(t, OutcomeMerged, resolution.Outcome, "Expected the confirmed entity to be filtered by its year")
		assert.Equal(t, "Augusta Byron", resolution.Entity.Name)
		assert.NotContains(t, resolution.Entity.Aliases, "Ada Lovelace", "Expected the confirmed key to not be stolen")
		require.NotEmpty(t, resolution.Entity.Conflicts)
		assert.Equal(t, model.FieldName, resolution.Entity.Conflicts[0].Field)
		assert.Equal(t, "Ada Lovelace", resolution.Entity.Conflicts[0].Value)

		kept, ok := resolver.Get(confirmed.Entity.ID)
		require.True(t, ok)
		assert.Empty(t, kept.Aliases, "Expected the confirmed entity to be untouched")
	})

	t.Run("Contested name blocks promotion", func(t *testing.T) {
		resolver := NewResolver(2)
		first, err := resolver.Resolve(personAttributes("John Smith", 1650, ""), uuid.New())
		require.NoError(t, err)
		promoted, err := resolver.Resolve(personAttributes("John Smith", 1650, ""), uuid.New())
		require.NoError(t, err)
		require.Equal(t, model.StatusConfirmed, promoted.Entity.Status)

		_, err = resolver.Resolve(personAttributes("John Smith", 1820, ""), uuid.New())
		require.NoError(t, err)
		resolution, err := resolver.Resolve(personAttributes("John Smith", 1820, ""), uuid.New())

		require.NoError(t, err)
		assert.Equal(t, OutcomeMerged, resolution.Outcome)
		assert.False(t, resolution.Promoted, "Expected promotion to be blocked by the confirmed namesake")
		assert.Equal(t, model.StatusCandidate, resolution.Entity.Status)
		assert.Equal(t, first.Entity.ID.String(), resolution.Entity.Metadata[MetadataContestedBy])
	})

	t.Run("Rejects attributes without a name", func(t *testing.T) {
		resolver := NewResolver(2)

		_, err := resolver.Resolve(&model.StructuredAttributes{}, uuid.New())
		assert.Error(t, err, "Expected an error for a nameless candidate")

		_, err = resolver.Resolve(nil, uuid.New())
		assert.Error(t, err, "Expected an error for nil attributes")
	})
}

func TestReview(t *testing.T) {
	t.Run("Routes a candidate to review", func(t *testing.T) {
		resolver := NewResolver(2)
		docRID := uuid.New()

		resolution, err := resolver.Review(&model.StructuredAttributes{Name: "Hermione Granger"}, docRID, ReasonLowConfidence)

		require.NoError(t, err)
		assert.Equal(t, OutcomeReviewed, resolution.Outcome)
		assert.Equal(t, model.StatusNeedsReview, resolution.Entity.Status)
		assert.Equal(t, ReasonLowConfidence, resolution.Entity.Metadata[MetadataReviewReason])
		assert.Equal(t, []uuid.UUID{docRID}, resolution.Entity.Provenance)
	})

	t.Run("Review entities do not attract matches", func(t *testing.T) {
		resolver := NewResolver(2)
		reviewed, err := resolver.Review(personAttributes("Ada Lovelace", 1815, ""), uuid.New(), ReasonClassificationFailed)
		require.NoError(t, err)

		resolution, err := resolver.Resolve(personAttributes("Ada Lovelace", 1815, ""), uuid.New())

		require.NoError(t, err)
		assert.Equal(t, OutcomeCreated, resolution.Outcome, "Expected a fresh entity instead of a merge into review")
		assert.NotEqual(t, reviewed.Entity.ID, resolution.Entity.ID)
	})

	t.Run("Routing the same candidate twice is a no op", func(t *testing.T) {
		resolver := NewResolver(2)
		docRID := uuid.New()

		first, err := resolver.Review(&model.StructuredAttributes{Name: "Gandalf"}, docRID, ReasonClassificationFailed)
		require.NoError(t, err)
		second, err := resolver.Review(&model.StructuredAttributes{Name: "Gandalf"}, docRID, ReasonClassificationFailed)
		require.NoError(t, err)

		assert.Equal(t, first.Entity.ID, second.Entity.ID, "Expected a single review entity")
		assert.Equal(t, 1, resolver.Count())
	})
}

func TestReject(t *testing.T) {
	t.Run("Records a bounded tombstone", func(t *testing.T) {
		resolver := NewResolver(2)
		docRID := uuid.New()

		resolution, err := resolver.Reject("Sherlock Holmes", docRID, "fictional")

		require.NoError(t, err)
		assert.Equal(t, OutcomeRejected, resolution.Outcome)
		assert.Equal(t, model.StatusRejected, resolution.Entity.Status)
		assert.Equal(t, "fictional", resolution.Entity.RejectedReason)
		assert.Nil(t, resolution.Entity.Attributes.Born, "Expected no attributes on a tombstone")
		assert.Equal(t, 0, resolver.Count(), "Expected tombstones to not count against the entity budget")
	})

	t.Run("Deduplicates tombstones by name", func(t *testing.T) {
		resolver := NewResolver(2)

		first, err := resolver.Reject("Sherlock Holmes", uuid.New(), "fictional")
		require.NoError(t, err)
		second, err := resolver.Reject("sherlock holmes", uuid.New(), "fictional")
		require.NoError(t, err)

		assert.Equal(t, first.Entity.ID, second.Entity.ID, "Expected one tombstone per name")
		assert.Len(t, second.Entity.Provenance, 2, "Expected the rejecting documents to accumulate")
	})

	t.Run("Rejected names do not attract matches", func(t *testing.T) {
		resolver := NewResolver(2)
		_, err := resolver.Reject("Ada Lovelace", uuid.New(), "misfired")
		require.NoError(t, err)

		resolution, err := resolver.Resolve(personAttributes("Ada Lovelace", 1815, ""), uuid.New())

		require.NoError(t, err)
		assert.Equal(t, OutcomeCreated, resolution.Outcome)
	})
}

func TestSnapshot(t *testing.T) {
	t.Run("Returns entities in creation order", func(t *testing.T) {
		resolver := NewResolver(2)
		_, err := resolver.Resolve(personAttributes("Ada Lovelace", 1815, ""), uuid.New())
		require.NoError(t, err)
		_, err = resolver.Resolve(personAttributes("Charles Babbage", 1791, ""), uuid.New())
		require.NoError(t, err)

		snapshot := resolver.Snapshot()

		require.Len(t, snapshot, 2)
		assert.Equal(t, "Ada Lovelace", snapshot[0].Name)
		assert.Equal(t, "Charles Babbage", snapshot[1].Name)
	})

	t.Run("Snapshot is a copy", func(t *testing.T) {
		resolver := NewResolver(2)
		created, err := resolver.Resolve(personAttributes("Ada Lovelace", 1815, ""), uuid.New())
		require.NoError(t, err)

		snapshot := resolver.Snapshot()
		snapshot[0].Name = "changed"
		snapshot[0].Provenance[0] = uuid.New()

		kept, ok := resolver.Get(created.Entity.ID)
		require.True(t, ok)
		assert.Equal(t, "Ada Lovelace", kept.Name, "Expected the index to be isolated from snapshot mutation")
		assert.Equal(t, created.Entity.Provenance, kept.Provenance)
	})
}

func TestStats(t *testing.T) {
	t.Run("Counts entities per status", func(t *testing.T) {
		resolver := NewResolver(2)
		_, err := resolver.Resolve(personAttributes("Ada Lovelace", 1815, ""), uuid.New())
		require.NoError(t, err)
		_, err = resolver.Resolve(personAttributes("Ada Lovelace", 1815, ""), uuid.New())
		require.NoError(t, err)
		_, err = resolver.Review(&model.StructuredAttributes{Name: "Gandalf"}, uuid.New(), ReasonClassificationFailed)
		require.NoError(t, err)
		_, err = resolver.Reject("Sherlock Holmes", uuid.New(), "fictional")
		require.NoError(t, err)

		stats := resolver.Stats()

		assert.Equal(t, 1, stats[model.StatusConfirmed])
		assert.Equal(t, 1, stats[model.StatusNeedsReview])
		assert.Equal(t, 1, stats[model.StatusRejected])
		assert.Equal(t, 0, stats[model.StatusCandidate])
	})
}
