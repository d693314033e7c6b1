package xoswarm

// Status names a lifecycle step of a streamed request.
type Status string

const (
	StatusProcessing   Status = "processing"
	StatusQuerying     Status = "querying"
	StatusResponse     Status = "response"
	StatusError        Status = "error"
	StatusSynthesizing Status = "synthesizing"
	StatusComplete     Status = "complete"
)

// Event is one progress notification. Model is set for per-provider events;
// the complete event carries the full result.
type Event struct {
	Status              Status            `json:"status"`
	Message             string            `json:"message,omitempty"`
	Model               string            `json:"model,omitempty"`
	Content             string            `json:"content,omitempty"`
	Error               string            `json:"error,omitempty"`
	FinalAnswer         string            `json:"final_answer,omitempty"`
	IndividualResponses map[string]string `json:"individual_responses,omitempty"`
	Tier                Tier              `json:"tier,omitempty"`
}

// providerEvent reports one provider's outcome.
func providerEvent(name, text string) Event {
	if IsError(text) {
		return Event{Status: StatusError, Model: name, Error: text}
	}
	return Event{Status: StatusResponse, Model: name, Content: text}
}
