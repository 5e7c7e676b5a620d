package llm

import (
	"strings"

	"github.com/siherrmann/biograph/model"
)

type extractData struct {
	Title   string
	Content string
}

func (c *Client) renderExtractPrompt(doc *model.Document) (string, error) {
	var out strings.Builder
	err := c.extractTemplate.Execute(&out, extractData{
		Title:   doc.Title,
		Content: doc.Content,
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

type classifyData struct {
	Name          string
	Mention       string
	DocumentTitle string
}

func (c *Client) renderClassifyPrompt(candidate *model.Candidate) (string, error) {
	var out strings.Builder
	err := c.classifyTemplate.Execute(&out, classifyData{
		Name:          candidate.Name,
		Mention:       candidate.Mention,
		DocumentTitle: candidate.DocumentTitle,
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

type structureData struct {
	Name          string
	Mention       string
	RawAttributes map[string]string
}

func (c *Client) renderStructurePrompt(candidate *model.Candidate) (string, error) {
	var out strings.Builder
	err := c.structureTemplate.Execute(&out, structureData{
		Name:          candidate.Name,
		Mention:       candidate.Mention,
		RawAttributes: candidate.RawAttributes,
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

type repairData struct {
	Original string
	Response string
	Problem  string
}

func (c *Client) renderRepairPrompt(original string, response string, problem error) (string, error) {
	var out strings.Builder
	err := c.repairTemplate.Execute(&out, repairData{
		Original: original,
		Response: response,
		Problem:  problem.Error(),
	})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

const extractPromptTemplate = `You are building a biographical index from encyclopedia articles. Find every individual person mentioned in the article below, whether real or fictional.

**Article: {{.Title}}**

{{.Content}}

For each person found, report:
- "name": the fullest form of the name the article uses
- "mention": a short text fragment surrounding the name, for later verification
- "attributes": raw text fragments about the person as found in the article, keyed by what they describe (eg. "born", "origin", "gender", "known_for")
- "links": titles of related articles the text connects to this person, each with "target" and "relationship" (eg. "spouse", "mentor", "subject")
- "confidence": how confident you are (0.0 to 1.0) that this names a distinct individual person

Respond with only a JSON object in this exact format:
{"mentions": [{"name": "Ada Lovelace", "mention": "the mathematician Ada Lovelace wrote", "attributes": {"born": "10 December 1815"}, "links": [{"target": "Charles Babbage", "relationship": "collaborator"}], "confidence": 0.95}]}

Copy attribute fragments verbatim from the article, do not normalize them. Use an empty "mentions" list if the article mentions no people.`

const classifyPromptTemplate = `You are checking whether a person mentioned in an encyclopedia article is a real human being, as opposed to a fictional, mythological or non-human figure.

Person: {{.Name}}
Found in article: {{.DocumentTitle}}
{{if .Mention}}Context: {{.Mention}}{{end}}

Respond with only a JSON object in this exact format:
{"is_real": true, "is_human": true, "confidence": 0.95}

"is_real" is false for fictional or mythological figures. "is_human" is false for deities, animals, organizations and other non-human subjects. "confidence" is your confidence in the classification (0.0 to 1.0).`

const structurePromptTemplate = `You are normalizing raw biographical fragments about a real person into structured fields.

Person: {{.Name}}
{{if .Mention}}Context: {{.Mention}}{{end}}
{{if .RawAttributes}}Raw fragments:
{{range $key, $value := .RawAttributes}}- {{$key}}: {{$value}}
{{end}}{{end}}

Respond with only a JSON object in this exact format:
{"name": "Ada Lovelace", "aliases": ["Augusta Ada King"], "birth_year": 1815, "birth_month": 12, "birth_day": 10, "locality": "London", "assigned_gender_at_birth": "female", "gender_identity": "female", "note": "wrote the first computer program", "confidence": {"name": 0.99, "born": 0.9, "locality": 0.8, "gender_assigned": 0.9, "gender_identity": 0.5, "note": 0.7}}

Rules:
- "name" is the canonical full name, "aliases" lists other names the person is known by
- Use null for any field the fragments do not support, never guess
- "birth_year" is negative for BCE births, "birth_month" and "birth_day" may be null when only the year is known
- "assigned_gender_at_birth" is "male", "female" or null when the fragments do not say
- "gender_identity" is free text when the fragments state it, otherwise null
- "note" is one short phrase on what the person is best known for
- "confidence" scores each field you filled (0.0 to 1.0), keyed by "name", "born", "locality", "gender_assigned", "gender_identity" and "note"`

const repairPromptTemplate = `Your previous response could not be parsed.

Problem: {{.Problem}}

Previous response:
{{.Response}}

Answer the original request again. Respond with only the corrected JSON object and nothing else.

Original request:
{{.Original}}`
