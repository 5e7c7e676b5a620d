package resolver

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/biograph/model"
)

// Outcome describes what a resolve call did with the candidate.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeMerged    Outcome = "merged"
	OutcomeAmbiguous Outcome = "ambiguous"
	OutcomeReviewed  Outcome = "reviewed"
	OutcomeRejected  Outcome = "rejected"
)

// Review reasons recorded on entities routed past normal resolution.
const (
	ReasonLowConfidence        = "low-confidence"
	ReasonClassificationFailed = "classification-failed"
	ReasonStructuringFailed    = "structuring-failed"
	ReasonAmbiguousMatch       = "ambiguous-match"
)

// Metadata keys written by the resolver.
const (
	MetadataReviewReason = "review_reason"
	MetadataContestedBy  = "contested_by"
)

// Resolution reports the outcome of resolving one candidate.
type Resolution struct {
	Outcome    Outcome
	Entity     *model.Entity // Copy of the affected entity
	Matched    []uuid.UUID   // Active entities hit during lookup
	Promoted   bool
	Conflicted bool
}

// Resolver owns the entity index. All lookups and mutations go through its
// lock, no other component touches entities directly. Needs review and
// rejected entities are kept but never absorb new mentions.
type Resolver struct {
	mu               sync.Mutex
	promoteThreshold int
	entities         map[uuid.UUID]*model.Entity
	order            []uuid.UUID
	keys             map[string][]uuid.UUID
	reviews          map[string]uuid.UUID
	rejected         map[string]uuid.UUID
}

// NewResolver creates a resolver promoting candidates to confirmed once their
// provenance reaches promoteThreshold distinct documents.
func NewResolver(promoteThreshold int) *Resolver {
	if promoteThreshold < 1 {
		promoteThreshold = 2
	}
	return &Resolver{
		promoteThreshold: promoteThreshold,
		entities:         map[uuid.UUID]*model.Entity{},
		keys:             map[string][]uuid.UUID{},
		reviews:          map[string]uuid.UUID{},
		rejected:         map[string]uuid.UUID{},
	}
}

// Resolve matches the structured attributes against the index and either
// creates a new candidate entity, merges into the single match, or routes an
// ambiguous candidate to review referencing all matches. Resolving the same
// attributes and document twice leaves the index unchanged.
func (r *Resolver) Resolve(attrs *model.StructuredAttributes, docRID uuid.UUID) (*Resolution, error) {
	if attrs == nil || strings.TrimSpace(attrs.Name) == "" {
		return nil, errors.New("attributes without a name cannot be resolved")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	matches := r.matchLocked(attrs)
	switch len(matches) {
	case 0:
		entity := r.createLocked(attrs, docRID, model.StatusCandidate, "")
		return &Resolution{Outcome: OutcomeCreated, Entity: entity.Clone()}, nil
	case 1:
		entity := matches[0]
		outcome := r.mergeLocked(entity, attrs, docRID)
		return &Resolution{
			Outcome:    OutcomeMerged,
			Entity:     entity.Clone(),
			Matched:    []uuid.UUID{entity.ID},
			Promoted:   outcome.promoted,
			Conflicted: outcome.conflicted,
		}, nil
	default:
		ids := make([]uuid.UUID, len(matches))
		for i, match := range matches {
			ids[i] = match.ID
		}

		// The matched entities are never auto merged, the candidate goes to
		// review holding references to all of them.
		key := reviewKey(attrs.Name, docRID)
		if id, ok := r.reviews[key]; ok {
			return &Resolution{Outcome: OutcomeAmbiguous, Entity: r.entities[id].Clone(), Matched: ids}, nil
		}

		entity := r.createLocked(attrs, docRID, model.StatusNeedsReview, ReasonAmbiguousMatch)
		for _, id := range ids {
			entity.AddReviewRef(id)
		}
		r.reviews[key] = entity.ID
		return &Resolution{Outcome: OutcomeAmbiguous, Entity: entity.Clone(), Matched: ids}, nil
	}
}

// Review routes a candidate straight to a needs review entity, bypassing
// match lookup. Used for low confidence classifications and exhausted repair
// retries. Repeated routing of the same name and document is a no op.
func (r *Resolver) Review(attrs *model.StructuredAttributes, docRID uuid.UUID, reason string) (*Resolution, error) {
	if attrs == nil || strings.TrimSpace(attrs.Name) == "" {
		return nil, errors.New("attributes without a name cannot be routed to review")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := reviewKey(attrs.Name, docRID)
	if id, ok := r.reviews[key]; ok {
		return &Resolution{Outcome: OutcomeReviewed, Entity: r.entities[id].Clone()}, nil
	}

	entity := r.createLocked(attrs, docRID, model.StatusNeedsReview, reason)
	r.reviews[key] = entity.ID
	return &Resolution{Outcome: OutcomeReviewed, Entity: entity.Clone()}, nil
}

// Reject records a bounded tombstone for a fictional or non person mention.
// Tombstones keep only the name, the reason and the rejecting documents, and
// are deduplicated by normalized name.
func (r *Resolver) Reject(name string, docRID uuid.UUID, reason string) (*Resolution, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("rejection without a name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := NormalizeKey(name)
	if id, ok := r.rejected[key]; ok {
		entity := r.entities[id]
		if entity.AddProvenance(docRID) {
			entity.UpdatedAt = time.Now()
		}
		return &Resolution{Outcome: OutcomeRejected, Entity: entity.Clone()}, nil
	}

	now := time.Now()
	entity := &model.Entity{
		ID:             uuid.New(),
		Name:           name,
		Status:         model.StatusRejected,
		RejectedReason: reason,
		Provenance:     []uuid.UUID{docRID},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.entities[entity.ID] = entity
	r.order = append(r.order, entity.ID)
	r.rejected[key] = entity.ID
	return &Resolution{Outcome: OutcomeRejected, Entity: entity.Clone()}, nil
}

// Get returns a copy of the entity with the given id.
func (r *Resolver) Get(id uuid.UUID) (*model.Entity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[id]
	if !ok {
		return nil, false
	}
	return entity.Clone(), true
}

// Snapshot returns a deep copy of all entities in creation order. The copy is
// safe to flush while resolution continues.
func (r *Resolver) Snapshot() []*model.Entity {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*model.Entity, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entities[id].Clone())
	}
	return out
}

// Stats returns the entity count per status.
func (r *Resolver) Stats() map[model.EntityStatus]int {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := map[model.EntityStatus]int{}
	for _, entity := range r.entities {
		stats[entity.Status]++
	}
	return stats
}

// Count returns the number of entities excluding rejected tombstones. The
// engine checks it against the entity budget.
func (r *Resolver) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, entity := range r.entities {
		if entity.Status != model.StatusRejected {
			count++
		}
	}
	return count
}

// matchLocked looks up active entities by the candidate's match keys. A match
// hit only through the bare name is dropped when both sides carry disagreeing
// birth years, two people sharing a name are not the same person.
func (r *Resolver) matchLocked(attrs *model.StructuredAttributes) []*model.Entity {
	yearKey := ""
	if attrs.Born != nil && attrs.Name != "" {
		yearKey = nameYearKey(attrs.Name, attrs.Born.Year)
	}

	type hit struct {
		entity *model.Entity
		keys   int
		year   bool
	}
	hits := map[uuid.UUID]*hit{}
	var order []uuid.UUID

	for _, key := range matchKeys(attrs) {
		for _, id := range r.keys[key] {
			entity, ok := r.entities[id]
			if !ok || !entity.Active() {
				continue
			}
			current := hits[id]
			if current == nil {
				current = &hit{entity: entity}
				hits[id] = current
				order = append(order, id)
			}
			current.keys++
			if key == yearKey {
				current.year = true
			}
		}
	}

	var matches []*model.Entity
	for _, id := range order {
		current := hits[id]
		if current.keys == 1 && !current.year && conflictingYears(attrs.Born, current.entity.Attributes.Born) {
			continue
		}
		matches = append(matches, current.entity)
	}
	return matches
}

// conflictingYears reports whether both dates are known and name different
// years.
func conflictingYears(a *model.BirthDate, b *model.BirthDate) bool {
	return a != nil && b != nil && a.Year != b.Year
}

// createLocked inserts a new entity built from the attributes. Match keys are
// only registered for active entities.
func (r *Resolver) createLocked(attrs *model.StructuredAttributes, docRID uuid.UUID, status model.EntityStatus, reason string) *model.Entity {
	now := time.Now()
	merged := attrs.Clone()
	name := strings.TrimSpace(merged.Name)
	aliases := merged.Aliases
	merged.Name = ""
	merged.Aliases = nil

	entity := &model.Entity{
		ID:         uuid.New(),
		Name:       name,
		Attributes: merged,
		Status:     status,
		Provenance: []uuid.UUID{docRID},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for _, alias := range aliases {
		entity.AddAlias(alias)
	}
	if reason != "" {
		entity.Metadata = model.Metadata{MetadataReviewReason: reason}
	}

	r.entities[entity.ID] = entity
	r.order = append(r.order, entity.ID)
	if entity.Active() {
		r.registerKeysLocked(entity)
	}
	return entity
}

func (r *Resolver) registerKeysLocked(entity *model.Entity) {
	for _, key := range entityKeys(entity) {
		r.addKeyLocked(key, entity.ID)
	}
}

func (r *Resolver) addKeyLocked(key string, id uuid.UUID) {
	for _, existing := range r.keys[key] {
		if existing == id {
			return
		}
	}
	r.keys[key] = append(r.keys[key], id)
}

func (r *Resolver) removeKeyLocked(key string, id uuid.UUID) {
	owners := r.keys[key]
	for i, existing := range owners {
		if existing == id {
			r.keys[key] = append(owners[:i], owners[i+1:]...)
			if len(r.keys[key]) == 0 {
				delete(r.keys, key)
			}
			return
		}
	}
}

// reindexLocked reconciles the key index after a merge changed the entity's
// name set or birth year.
func (r *Resolver) reindexLocked(entity *model.Entity, oldKeys []string) {
	current := map[string]bool{}
	for _, key := range entityKeys(entity) {
		current[key] = true
		r.addKeyLocked(key, entity.ID)
	}
	for _, key := range oldKeys {
		if !current[key] {
			r.removeKeyLocked(key, entity.ID)
		}
	}
}

// confirmedKeyOwnerLocked returns the id of a confirmed entity other than the
// given one holding any of its keys, or uuid.Nil.
func (r *Resolver) confirmedKeyOwnerLocked(entity *model.Entity) uuid.UUID {
	for _, key := range entityKeys(entity) {
		for _, id := range r.keys[key] {
			if id == entity.ID {
				continue
			}
			if other, ok := r.entities[id]; ok && other.Status == model.StatusConfirmed {
				return id
			}
		}
	}
	return uuid.Nil
}

func reviewKey(name string, docRID uuid.UUID) string {
	return NormalizeKey(name) + "|" + docRID.String()
}
