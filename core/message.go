package core

import "time"

// BroadcastTarget is the reserved recipient address used for broadcasts.
const BroadcastTarget = "*"

// MessageType tags the payload kind carried by a Message.
type MessageType string

const (
	// Orchestrator -> researcher.
	TypeAssignTask           MessageType = "assign_task"
	TypeRequestClarification MessageType = "request_clarification"
	TypeExpandResearch       MessageType = "expand_research"
	TypeStopResearch         MessageType = "stop_research"

	// Researcher -> orchestrator.
	TypeFindingReport         MessageType = "finding_report"
	TypeClarificationResponse MessageType = "clarification_response"

	// Orchestrator <-> synthesizer.
	TypeSynthesizeRequest MessageType = "synthesize_request"
	TypeSynthesisComplete MessageType = "synthesis_complete"

	// User control, relayed via the session manager.
	TypeUserFeedback    MessageType = "user_feedback"
	TypeUserStopRequest MessageType = "user_stop_request"
)

// Payload is the closed set of message payload kinds. Each kind is a concrete
// struct carrying its own strongly typed fields; consumers dispatch with a
// type switch rather than inspecting the envelope's MessageType.
type Payload interface {
	MessageType() MessageType
}

// AssignTask instructs a researcher to work one subtopic.
type AssignTask struct {
	Subtopic      string   `json:"subtopic"`
	SearchQueries []string `json:"search_queries"`
	Instructions  string   `json:"instructions,omitempty"`
}

func (AssignTask) MessageType() MessageType { return TypeAssignTask }

// RequestClarification asks a researcher to disambiguate earlier findings.
type RequestClarification struct {
	Question string `json:"question"`
}

func (RequestClarification) MessageType() MessageType { return TypeRequestClarification }

// ClarificationResponse answers a RequestClarification.
type ClarificationResponse struct {
	Clarified bool `json:"clarified"`
}

func (ClarificationResponse) MessageType() MessageType { return TypeClarificationResponse }

// ExpandResearch supplies additional queries for an already assigned subtopic.
type ExpandResearch struct {
	AdditionalQueries []string `json:"additional_queries"`
}

func (ExpandResearch) MessageType() MessageType { return TypeExpandResearch }

// StopResearch tells a worker to stop initiating new work.
type StopResearch struct{}

func (StopResearch) MessageType() MessageType { return TypeStopResearch }

// FindingReport carries the accumulated findings for one completed task.
type FindingReport struct {
	Findings []KnowledgeEntry `json:"findings"`
}

func (FindingReport) MessageType() MessageType { return TypeFindingReport }

// SynthesizeRequest asks the synthesizer to produce a synthesis from the
// supplied working set.
type SynthesizeRequest struct {
	Input SynthesisInput `json:"input"`
}

func (SynthesizeRequest) MessageType() MessageType { return TypeSynthesizeRequest }

// SynthesisComplete announces a finished synthesis.
type SynthesisComplete struct {
	SynthesisID string       `json:"synthesis_id"`
	Summary     string       `json:"summary"`
	KeyFindings []KeyFinding `json:"key_findings,omitempty"`
}

func (SynthesisComplete) MessageType() MessageType { return TypeSynthesisComplete }

// FeedbackPayload relays user feedback into a running session.
type FeedbackPayload struct {
	Type    FeedbackType `json:"type"`
	Content string       `json:"content"`
}

func (FeedbackPayload) MessageType() MessageType { return TypeUserFeedback }

// StopRequest asks the orchestrator to finish after the current iteration.
type StopRequest struct{}

func (StopRequest) MessageType() MessageType { return TypeUserStopRequest }

// Message is the immutable envelope exchanged over the fabric. It is created
// by the fabric on send, delivered to zero or more handlers and never
// mutated. Messages are not persisted; a handler registered after a message
// was sent never receives it.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	Iteration int         `json:"iteration"`
	From      string      `json:"from"`
	To        string      `json:"to"`
	Type      MessageType `json:"type"`
	Payload   Payload     `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage assembles an envelope for the given payload. The Type field is
// derived from the payload so the two can never disagree.
func NewMessage(from, to string, payload Payload, sessionID string, iteration int) Message {
	return Message{
		ID:        NewID(),
		SessionID: sessionID,
		Iteration: iteration,
		From:      from,
		To:        to,
		Type:      payload.MessageType(),
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}
