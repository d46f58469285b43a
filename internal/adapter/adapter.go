// Package adapter maps each job board's wire format onto model.RawPosting.
// Adapters fetch one page at a time through a shared Client, so a consumer
// ranging over FetchAll persists page k before page k+1 is requested.
package adapter

import "github.com/amishk599/jobagent/internal/model"

// Providers returns every supported provider keyed by name.
func Providers(client *Client) map[string]model.Provider {
	providers := []model.Provider{
		NewGreenhouseAdapter(client),
		NewLeverAdapter(client),
		NewWorkdayAdapter(client),
	}
	m := make(map[string]model.Provider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return m
}
