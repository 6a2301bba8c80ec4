package services

import "context"

// ModelClient is an interface for the model collaborator: given a
// model identifier and a fully-built prompt, return the response text.
// Any failure (timeout, network, upstream rejection, unparseable
// response) surfaces as an error and is recorded as an ERROR attempt.
type ModelClient interface {
	// Invoke sends prompt to model and returns the text response.
	Invoke(ctx context.Context, model, prompt string) (string, error)
}
