package domain

// EventKind enumerates the closed set of stream event types. Consumers
// switch exhaustively on it; there is no stringly-typed dispatch beyond
// the wire name.
type EventKind int

const (
	EventPredictions EventKind = iota
	EventVision
	EventText
	EventComplete
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPredictions:
		return "predictions"
	case EventVision:
		return "vision"
	case EventText:
		return "text"
	case EventComplete:
		return "complete"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the event ends its stream.
func (k EventKind) IsTerminal() bool {
	return k == EventComplete || k == EventError
}

// IsIdentity reports whether the event resolves the artwork identity.
// Exactly one identity event precedes all text chunks on a stream.
func (k EventKind) IsIdentity() bool {
	return k == EventPredictions || k == EventVision
}

// StreamEvent is the tagged union flowing through the streaming
// transport. Exactly the payload field matching Kind is set.
type StreamEvent struct {
	Kind        EventKind
	Predictions []Prediction
	Vision      *VisionFinding
	Chunk       string
	Result      *AnalysisResult
	Err         error
}

func PredictionsEvent(predictions []Prediction) StreamEvent {
	return StreamEvent{Kind: EventPredictions, Predictions: predictions}
}

func VisionEvent(finding VisionFinding) StreamEvent {
	return StreamEvent{Kind: EventVision, Vision: &finding}
}

func TextEvent(chunk string) StreamEvent {
	return StreamEvent{Kind: EventText, Chunk: chunk}
}

func CompleteEvent(result AnalysisResult) StreamEvent {
	return StreamEvent{Kind: EventComplete, Result: &result}
}

func ErrorEvent(err error) StreamEvent {
	return StreamEvent{Kind: EventError, Err: err}
}
