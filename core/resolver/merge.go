package resolver

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/biograph/model"
)

// defaultFieldConfidence stands in when the structurer reported no confidence
// for a field.
const defaultFieldConfidence = 0.5

type mergeOutcome struct {
	changed    bool
	promoted   bool
	conflicted bool
}

// mergeLocked folds the attributes into an existing entity. Per field the
// higher confidence value wins, an equal confidence disagreement keeps the
// current value and records the other as a conflict. Re-merging the same
// attributes and document changes nothing.
func (r *Resolver) mergeLocked(entity *model.Entity, attrs *model.StructuredAttributes, docRID uuid.UUID) mergeOutcome {
	oldKeys := entityKeys(entity)
	outcome := mergeOutcome{}
	outcome.changed = entity.AddProvenance(docRID)

	// A mention name differing from the canonical name becomes an alias.
	nameConfidence := attrs.Confidence.Get(model.FieldName, defaultFieldConfidence)
	if name := strings.TrimSpace(attrs.Name); name != "" && !strings.EqualFold(name, entity.Name) {
		r.claimAliasLocked(entity, name, nameConfidence, docRID, &outcome)
	}
	for _, alias := range attrs.Aliases {
		r.claimAliasLocked(entity, alias, nameConfidence, docRID, &outcome)
	}

	r.mergeBornLocked(entity, attrs, docRID, &outcome)

	mergeString(entity, model.FieldLocality,
		entity.Attributes.Locality, attrs.Locality,
		attrs.Confidence.Get(model.FieldLocality, defaultFieldConfidence), docRID, true,
		func(value string) { entity.Attributes.Locality = value }, &outcome)

	currentGender := ""
	if entity.Attributes.GenderAssigned != "" && entity.Attributes.GenderAssigned != model.GenderUnknown {
		currentGender = string(entity.Attributes.GenderAssigned)
	}
	incomingGender := ""
	if attrs.GenderAssigned != "" && attrs.GenderAssigned != model.GenderUnknown {
		incomingGender = string(attrs.GenderAssigned)
	}
	mergeString(entity, model.FieldGenderAssigned,
		currentGender, incomingGender,
		attrs.Confidence.Get(model.FieldGenderAssigned, defaultFieldConfidence), docRID, true,
		func(value string) { entity.Attributes.GenderAssigned = model.Gender(value) }, &outcome)

	mergeString(entity, model.FieldGenderIdentity,
		entity.Attributes.GenderIdentity, attrs.GenderIdentity,
		attrs.Confidence.Get(model.FieldGenderIdentity, defaultFieldConfidence), docRID, true,
		func(value string) { entity.Attributes.GenderIdentity = value }, &outcome)

	// Notes are free text summaries, different wordings are not a conflict.
	mergeString(entity, model.FieldNote,
		entity.Attributes.Note, attrs.Note,
		attrs.Confidence.Get(model.FieldNote, defaultFieldConfidence), docRID, false,
		func(value string) { entity.Attributes.Note = value }, &outcome)

	// Promote once enough independent documents corroborate the entity. A
	// name already owned by another confirmed entity blocks promotion until
	// reviewed.
	if entity.Status == model.StatusCandidate && len(entity.Provenance) >= r.promoteThreshold {
		if blocker := r.confirmedKeyOwnerLocked(entity); blocker != uuid.Nil {
			if setMetadata(entity, MetadataContestedBy, blocker.String()) {
				outcome.changed = true
			}
		} else {
			entity.Status = model.StatusConfirmed
			outcome.promoted = true
			outcome.changed = true
		}
	}

	r.reindexLocked(entity, oldKeys)
	if outcome.changed {
		entity.UpdatedAt = time.Now()
	}
	return outcome
}

// claimAliasLocked adds a name to the entity's alias set unless its key is
// owned by another confirmed entity. Contested keys are recorded as
// conflicts, never stolen.
func (r *Resolver) claimAliasLocked(entity *model.Entity, alias string, confidence float64, docRID uuid.UUID, outcome *mergeOutcome) {
	alias = strings.TrimSpace(alias)
	key := NormalizeKey(alias)
	if key == "" {
		return
	}

	for _, id := range r.keys[key] {
		if id == entity.ID {
			continue
		}
		if other, ok := r.entities[id]; ok && other.Status == model.StatusConfirmed {
			if addConflict(entity, model.FieldConflict{Field: model.FieldName, Value: alias, Confidence: confidence, DocumentRID: docRID}) {
				outcome.changed = true
				outcome.conflicted = true
			}
			return
		}
	}

	if entity.AddAlias(alias) {
		outcome.changed = true
	}
}

// mergeBornLocked merges the birth date. Dates that agree refine each other
// to the higher precision, disagreeing dates follow the confidence policy.
func (r *Resolver) mergeBornLocked(entity *model.Entity, attrs *model.StructuredAttributes, docRID uuid.UUID, outcome *mergeOutcome) {
	incoming := attrs.Born
	if incoming == nil {
		return
	}
	confidence := attrs.Confidence.Get(model.FieldBorn, defaultFieldConfidence)

	current := entity.Attributes.Born
	if current == nil {
		born := *incoming
		entity.Attributes.Born = &born
		setFieldConfidence(entity, model.FieldBorn, confidence)
		outcome.changed = true
		return
	}

	existingConfidence := entity.Attributes.Confidence.Get(model.FieldBorn, defaultFieldConfidence)
	if incoming.Agrees(current) {
		if incoming.Precision() > current.Precision() {
			born := *incoming
			entity.Attributes.Born = &born
			outcome.changed = true
		}
		if confidence > existingConfidence {
			setFieldConfidence(entity, model.FieldBorn, confidence)
			outcome.changed = true
		}
		return
	}

	switch {
	case confidence > existingConfidence:
		born := *incoming
		entity.Attributes.Born = &born
		setFieldConfidence(entity, model.FieldBorn, confidence)
		outcome.changed = true
	case confidence < existingConfidence:
		// Keep the higher confidence date.
	default:
		if addConflict(entity, model.FieldConflict{Field: model.FieldBorn, Value: incoming.String(), Confidence: confidence, DocumentRID: docRID}) {
			outcome.changed = true
			outcome.conflicted = true
		}
	}
}

// mergeString merges a single text field. An empty incoming value never
// touches the field, a known value always beats an unknown one regardless of
// confidence.
func mergeString(entity *model.Entity, field model.Field, current string, incoming string, confidence float64, docRID uuid.UUID, recordTie bool, assign func(string), outcome *mergeOutcome) {
	incoming = strings.TrimSpace(incoming)
	if incoming == "" {
		return
	}

	if current == "" {
		assign(incoming)
		setFieldConfidence(entity, field, confidence)
		outcome.changed = true
		return
	}

	existingConfidence := entity.Attributes.Confidence.Get(field, defaultFieldConfidence)
	if strings.EqualFold(current, incoming) {
		if confidence > existingConfidence {
			setFieldConfidence(entity, field, confidence)
			outcome.changed = true
		}
		return
	}

	switch {
	case confidence > existingConfidence:
		assign(incoming)
		setFieldConfidence(entity, field, confidence)
		outcome.changed = true
	case confidence < existingConfidence:
		// Keep the higher confidence value.
	default:
		if recordTie && addConflict(entity, model.FieldConflict{Field: field, Value: incoming, Confidence: confidence, DocumentRID: docRID}) {
			outcome.changed = true
			outcome.conflicted = true
		}
	}
}

// addConflict appends a conflict unless the same field, value and document
// were already recorded.
func addConflict(entity *model.Entity, conflict model.FieldConflict) bool {
	for _, existing := range entity.Conflicts {
		if existing.Field == conflict.Field && existing.Value == conflict.Value && existing.DocumentRID == conflict.DocumentRID {
			return false
		}
	}
	entity.Conflicts = append(entity.Conflicts, conflict)
	return true
}

func setFieldConfidence(entity *model.Entity, field model.Field, confidence float64) {
	if entity.Attributes.Confidence == nil {
		entity.Attributes.Confidence = model.FieldConfidence{}
	}
	entity.Attributes.Confidence[field] = confidence
}

func setMetadata(entity *model.Entity, key string, value string) bool {
	if entity.Metadata == nil {
		entity.Metadata = model.Metadata{}
	}
	if existing, ok := entity.Metadata[key]; ok && existing == value {
		return false
	}
	entity.Metadata[key] = value
	return true
}
