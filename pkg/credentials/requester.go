package credentials

import (
	"context"

	"github.com/rs/zerolog"
)

// Request asks the hosting environment to navigate to URL and extract credentials.
type Request struct {
	Tenant  string `json:"tenant"`
	Subject string `json:"subject"`
	URL     string `json:"url"`
}

// Requester signals the credential extraction collaborator.
// The signal is fire-and-forget; errors are logged by the caller, never propagated.
type Requester interface {
	RequestCredentials(ctx context.Context, req Request) error
}

// RequesterFunc adapts a function to the Requester interface.
type RequesterFunc func(ctx context.Context, req Request) error

// RequestCredentials implements Requester.
func (f RequesterFunc) RequestCredentials(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// LogRequester only records the request. It is used when no collaborator is
// wired and credentials are expected to be published out of band.
type LogRequester struct {
	Logger zerolog.Logger
}

// RequestCredentials implements Requester.
func (r LogRequester) RequestCredentials(_ context.Context, req Request) error {
	r.Logger.Info().
		Str("tenant", req.Tenant).
		Str("subject", req.Subject).
		Str("url", req.URL).
		Msg("Credentials requested; waiting for them to be published")
	return nil
}
