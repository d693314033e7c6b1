package xoswarm

import (
	"context"
	"fmt"
)

// Adapter binds a Client to the display name its result is recorded under.
// Call never returns an error: failures come back as text tagged with the
// display name.
type Adapter struct {
	name    string
	client  Client
	freeWeb *substitute
	preset  string
}

// substitute records that a free-web client stands in for a hosted provider
// that had no credential.
type substitute struct {
	model string
}

// NewAdapter returns an adapter that records client's answers under name.
func NewAdapter(name string, client Client) Adapter {
	return Adapter{name: name, client: client}
}

// FailedAdapter returns an adapter whose call fails immediately with detail,
// for providers that could not be built.
func FailedAdapter(name, detail string) Adapter {
	return Adapter{name: name, preset: formatError(name, detail)}
}

// substituteAdapter returns an adapter that answers for name through a
// free-web client and tags its output accordingly.
func substituteAdapter(name string, client Client, model string) Adapter {
	return Adapter{name: name, client: client, freeWeb: &substitute{model: model}}
}

// Name returns the display name.
func (a Adapter) Name() string {
	return a.name
}

// Call queries the provider once and returns its answer or a tagged error.
func (a Adapter) Call(ctx context.Context, query string) (text string) {
	if a.preset != "" {
		return a.preset
	}
	if a.client == nil {
		return a.errorText("client not initialized")
	}

	defer func() {
		if r := recover(); r != nil {
			text = a.errorText(fmt.Sprintf("panic: %v", r))
		}
	}()

	answer, err := a.client.Generate(ctx, query)
	if err != nil {
		return a.errorText(err.Error())
	}
	if a.freeWeb != nil {
		return fmt.Sprintf("%s\n\n*(Source: Free Web - %s via %s)*", answer, a.name, a.freeWeb.model)
	}
	return answer
}

// Close releases the underlying client.
func (a Adapter) Close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

func (a Adapter) errorText(detail string) string {
	if a.freeWeb != nil {
		return formatFreeWebError(a.name, detail)
	}
	return formatError(a.name, detail)
}

func formatError(name, detail string) string {
	return fmt.Sprintf("%s (%s): %s", errorPrefix, name, detail)
}

func formatFreeWebError(name, detail string) string {
	return fmt.Sprintf("%s (%s - Free Web): %s", errorPrefix, name, detail)
}
