package voiceai

import "sort"

// ParameterSchema is the JSON-schema fragment describing one tool parameter.
type ParameterSchema struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// DynamicParameter declares one parameter the model must collect before
// invoking the tool.
type DynamicParameter struct {
	Name     string          `json:"name"`
	Location string          `json:"location"`
	Schema   ParameterSchema `json:"schema"`
	Required bool            `json:"required"`
}

// TemporaryTool is a per-call client tool definition.
type TemporaryTool struct {
	ModelToolName     string             `json:"modelToolName"`
	Description       string             `json:"description"`
	DynamicParameters []DynamicParameter `json:"dynamicParameters"`
	Client            struct{}           `json:"client"`
}

// SelectedTool wraps one tool definition in the create-call payload.
type SelectedTool struct {
	TemporaryTool TemporaryTool `json:"temporaryTool"`
}

const parameterLocationBody = "PARAMETER_LOCATION_BODY"

// Tool names the bridge handles locally.
const (
	ToolQuestionAndAnswer = "question_and_answer"
	ToolScheduleMeeting   = "schedule_meeting"
)

// SelectedTools builds the client tool declarations for a new call. The
// location enum is derived from the configured calendars so the model can
// only offer venues a booking can actually land in.
func SelectedTools(calendars map[string]string) []SelectedTool {
	locations := make([]string, 0, len(calendars))
	for name := range calendars {
		locations = append(locations, name)
	}
	sort.Strings(locations)

	return []SelectedTool{
		{TemporaryTool: TemporaryTool{
			ModelToolName: ToolQuestionAndAnswer,
			Description:   "Answer caller questions about the business, its services and policies.",
			DynamicParameters: []DynamicParameter{
				{
					Name:     "question",
					Location: parameterLocationBody,
					Schema:   ParameterSchema{Type: "string", Description: "The caller's question."},
					Required: true,
				},
			},
		}},
		{TemporaryTool: TemporaryTool{
			ModelToolName: ToolScheduleMeeting,
			Description:   "Book an appointment once the caller has provided every detail.",
			DynamicParameters: []DynamicParameter{
				{
					Name:     "name",
					Location: parameterLocationBody,
					Schema:   ParameterSchema{Type: "string", Description: "The caller's full name."},
					Required: true,
				},
				{
					Name:     "email",
					Location: parameterLocationBody,
					Schema:   ParameterSchema{Type: "string", Description: "The caller's email address."},
					Required: true,
				},
				{
					Name:     "purpose",
					Location: parameterLocationBody,
					Schema:   ParameterSchema{Type: "string", Description: "The purpose of the meeting."},
					Required: true,
				},
				{
					Name:     "datetime",
					Location: parameterLocationBody,
					Schema:   ParameterSchema{Type: "string", Description: "Requested date and time in ISO 8601 format."},
					Required: true,
				},
				{
					Name:     "location",
					Location: parameterLocationBody,
					Schema: ParameterSchema{
						Type:        "string",
						Description: "The venue for the meeting.",
						Enum:        locations,
					},
					Required: true,
				},
			},
		}},
	}
}
