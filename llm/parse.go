package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/siherrmann/biograph/helper"
	"github.com/siherrmann/biograph/model"
)

// extractJSON cuts the JSON payload out of a model response, tolerating
// markdown fences and surrounding prose.
func extractJSON(response string) (string, error) {
	start := strings.IndexAny(response, "{[")
	if start < 0 {
		return "", fmt.Errorf("no JSON object in response")
	}
	end := strings.LastIndexAny(response, "}]")
	if end < start {
		return "", fmt.Errorf("unterminated JSON object in response")
	}
	return response[start : end+1], nil
}

func clampConfidence(confidence float64) float64 {
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

type extractedLink struct {
	Target       string `json:"target"`
	Relationship string `json:"relationship"`
}

type extractedMention struct {
	Name       string            `json:"name"`
	Mention    string            `json:"mention"`
	Attributes map[string]string `json:"attributes"`
	Links      []extractedLink   `json:"links"`
	Confidence float64           `json:"confidence"`
}

type extractionResponse struct {
	Mentions []extractedMention `json:"mentions"`
}

// parseExtraction validates an extraction payload and converts it to
// candidates bound to the source document. Mentions without a name are
// dropped, links without a target are dropped from their mention.
func parseExtraction(payload string, doc *model.Document) ([]*model.Candidate, error) {
	var response extractionResponse
	err := json.Unmarshal([]byte(payload), &response)
	if err != nil {
		return nil, helper.NewError("unmarshal extraction", err)
	}

	candidates := make([]*model.Candidate, 0, len(response.Mentions))
	for _, mention := range response.Mentions {
		name := strings.TrimSpace(mention.Name)
		if name == "" {
			continue
		}

		links := make([]model.Link, 0, len(mention.Links))
		for _, link := range mention.Links {
			target := strings.TrimSpace(link.Target)
			if target == "" {
				continue
			}
			links = append(links, model.Link{
				Target:       target,
				Relationship: strings.TrimSpace(link.Relationship),
			})
		}

		candidates = append(candidates, &model.Candidate{
			DocumentRID:   doc.RID,
			DocumentTitle: doc.Title,
			Depth:         doc.Depth,
			Name:          name,
			Mention:       strings.TrimSpace(mention.Mention),
			RawAttributes: mention.Attributes,
			Links:         links,
			Confidence:    clampConfidence(mention.Confidence),
		})
	}

	return candidates, nil
}

type classificationResponse struct {
	IsReal     *bool   `json:"is_real"`
	IsHuman    *bool   `json:"is_human"`
	Confidence float64 `json:"confidence"`
}

// parseClassification validates a classification payload. Both is_real and
// is_human must be present, a person is only real when both are true.
func parseClassification(payload string) (model.CandidateLabel, float64, error) {
	var response classificationResponse
	err := json.Unmarshal([]byte(payload), &response)
	if err != nil {
		return model.LabelUnclassified, 0, helper.NewError("unmarshal classification", err)
	}

	if response.IsReal == nil {
		return model.LabelUnclassified, 0, fmt.Errorf("classification is missing is_real")
	}
	if response.IsHuman == nil {
		return model.LabelUnclassified, 0, fmt.Errorf("classification is missing is_human")
	}

	label := model.LabelFictional
	if *response.IsReal && *response.IsHuman {
		label = model.LabelRealPerson
	}

	return label, clampConfidence(response.Confidence), nil
}

type structureResponse struct {
	Name           string             `json:"name"`
	Aliases        []string           `json:"aliases"`
	BirthYear      *int               `json:"birth_year"`
	BirthMonth     *int               `json:"birth_month"`
	BirthDay       *int               `json:"birth_day"`
	Born           string             `json:"born"`
	Locality       string             `json:"locality"`
	GenderAssigned string             `json:"assigned_gender_at_birth"`
	GenderIdentity string             `json:"gender_identity"`
	Note           string             `json:"note"`
	Confidence     map[string]float64 `json:"confidence"`
}

var confidenceFields = map[string]model.Field{
	"name":            model.FieldName,
	"born":            model.FieldBorn,
	"locality":        model.FieldLocality,
	"gender_assigned": model.FieldGenderAssigned,
	"gender_identity": model.FieldGenderIdentity,
	"note":            model.FieldNote,
}

// parseStructure validates a structuring payload. A name is required and an
// invalid birth date makes the whole payload malformed, so the model gets a
// chance to repair it.
func parseStructure(payload string) (*model.StructuredAttributes, error) {
	var response structureResponse
	err := json.Unmarshal([]byte(payload), &response)
	if err != nil {
		return nil, helper.NewError("unmarshal structure", err)
	}

	name := strings.TrimSpace(response.Name)
	if name == "" {
		return nil, fmt.Errorf("structure is missing name")
	}

	var born *model.BirthDate
	if response.BirthYear != nil {
		month, day := 0, 0
		if response.BirthMonth != nil {
			month = *response.BirthMonth
		}
		if response.BirthDay != nil {
			day = *response.BirthDay
		}
		born, err = model.NewBirthDate(*response.BirthYear, month, day)
		if err != nil {
			return nil, helper.NewError("validate birth date", err)
		}
	} else if strings.TrimSpace(response.Born) != "" {
		born, err = model.ParseBirthDate(response.Born)
		if err != nil {
			return nil, helper.NewError("parse birth date", err)
		}
	}

	aliases := make([]string, 0, len(response.Aliases))
	for _, alias := range response.Aliases {
		alias = strings.TrimSpace(alias)
		if alias == "" || strings.EqualFold(alias, name) {
			continue
		}
		duplicate := false
		for _, existing := range aliases {
			if strings.EqualFold(existing, alias) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			aliases = append(aliases, alias)
		}
	}

	confidence := model.FieldConfidence{}
	for key, value := range response.Confidence {
		field, ok := confidenceFields[strings.ToLower(strings.TrimSpace(key))]
		if !ok {
			continue
		}
		confidence[field] = clampConfidence(value)
	}

	return &model.StructuredAttributes{
		Name:           name,
		Aliases:        aliases,
		Born:           born,
		Locality:       strings.TrimSpace(response.Locality),
		GenderAssigned: model.ParseGender(response.GenderAssigned),
		GenderIdentity: strings.TrimSpace(response.GenderIdentity),
		Note:           strings.TrimSpace(response.Note),
		Confidence:     confidence,
	}, nil
}
