// Package esign verifies e-signature vendor callbacks and maps their events
// onto quote statuses.
package esign

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"net/http"
	"net/url"
	"sort"

	"crmhub/internal/config"
	"crmhub/internal/models"
)

var (
	ErrBadSignature = errors.New("esign: signature mismatch")
	ErrMalformed    = errors.New("esign: malformed payload")
)

// Delivery is one raw webhook request.
type Delivery struct {
	Header http.Header
	Query  url.Values
	Body   []byte
}

// Event is a vendor event reduced to what a quote needs. Status is empty for
// events that do not change the quote.
type Event struct {
	Provider   string
	EnvelopeID string
	Name       string
	Status     models.QuoteStatus
}

// Key identifies a delivery for de-duplication.
func (e Event) Key() string {
	return e.Provider + ":" + e.EnvelopeID + ":" + e.Name
}

type Provider interface {
	Name() string
	// Parse verifies the delivery and extracts its events.
	Parse(d Delivery) ([]Event, error)
}

// Acknowledger is implemented by providers that expect a fixed response body.
type Acknowledger interface {
	Ack() string
}

type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// FromConfig registers every provider that has a secret configured.
func FromConfig(cfg config.WebhooksConfig) *Registry {
	var ps []Provider
	if cfg.DocuSignSecret != "" {
		ps = append(ps, NewDocuSign(cfg.DocuSignSecret))
	}
	if cfg.HelloSignAPIKey != "" {
		ps = append(ps, NewHelloSign(cfg.HelloSignAPIKey))
	}
	if cfg.PandaDocKey != "" {
		ps = append(ps, NewPandaDoc(cfg.PandaDocKey))
	}
	return NewRegistry(ps...)
}

func (r *Registry) Lookup(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func sign(key, msg []byte) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(msg)
	return m.Sum(nil)
}
