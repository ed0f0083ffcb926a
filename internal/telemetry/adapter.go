package telemetry

import (
	"encoding/json"

	"briefloom/internal/llm"
)

// GatewayRecorder adapts a *Recorder to the llm.Recorder interface expected
// by the Gateway, translating its call-shaped record into an AICallRecord.
type GatewayRecorder struct {
	recorder *Recorder
}

var _ llm.Recorder = (*GatewayRecorder)(nil)

// NewGatewayRecorder wraps r for use as an llm.Gateway's Recorder.
func NewGatewayRecorder(r *Recorder) *GatewayRecorder {
	return &GatewayRecorder{recorder: r}
}

func (a *GatewayRecorder) Append(rec llm.CallRecord) error {
	messages, err := json.Marshal(rec.Messages)
	if err != nil {
		messages = nil
	}
	return a.recorder.Append(AICallRecord{
		CallID:      rec.CallID,
		Timestamp:   rec.Timestamp,
		CallType:    rec.CallType,
		Model:       rec.Model,
		AgentName:   rec.AgentName,
		SessionID:   rec.SessionID,
		Messages:    messages,
		Response:    rec.Response,
		PromptTok:   rec.PromptTok,
		CompleteTok: rec.CompleteTok,
		TotalTok:    rec.TotalTok,
		DurationMS:  rec.DurationMS,
		RetryCount:  rec.RetryCount,
		Error:       rec.Error,
	})
}
