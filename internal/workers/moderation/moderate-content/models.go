// internal/workers/moderation/moderate-content/models.go
package moderatecontent

import (
	"sort"
	"strings"

	"suburbmates-workers/internal/common/validation"
	"suburbmates-workers/internal/moderation"
)

type Input struct {
	SubmissionID   string            `json:"submissionId"`
	SubmissionType string            `json:"submissionType"`
	Fields         map[string]string `json:"fields"`
	Email          string            `json:"email,omitempty"`
}

// Text joins the non-empty field values in key order.
func (in Input) Text() string {
	keys := make([]string, 0, len(in.Fields))
	for k := range in.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if v := strings.TrimSpace(in.Fields[k]); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "\n\n")
}

type Output struct {
	moderation.Result
	ModerationID string `json:"moderationId"`
	SubmissionID string `json:"submissionId"`
	Persisted    bool   `json:"persisted"`
}

var inputSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["submissionId", "submissionType", "fields"],
	"properties": {
		"submissionId":   {"type": "string", "minLength": 1},
		"submissionType": {"type": "string", "enum": ["business", "inquiry"]},
		"fields": {
			"type": "object",
			"additionalProperties": {"type": "string"}
		},
		"email": {"type": "string"}
	}
}`)
