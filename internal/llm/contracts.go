package llm

import "context"

// Request is one inference call. When JSONSchema is set the collaborator is
// asked for a JSON object constrained by it; otherwise free text is expected.
type Request struct {
	System      string
	User        string
	JSONSchema  map[string]any
	Temperature float32
}

// Response carries the raw model content; callers parse it.
type Response struct {
	Content string
}

// Inferencer is the inference collaborator contract the core depends on.
// Transport failures surface as common.ErrInferenceUnavailable, undecodable
// replies as common.ErrInferenceMalformed.
type Inferencer interface {
	Infer(ctx context.Context, req Request) (Response, error)
}
