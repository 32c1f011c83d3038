package esign

import (
	"crypto/hmac"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"crmhub/internal/models"
)

var pandaDocStatuses = map[string]models.QuoteStatus{
	"document.viewed":    models.QuoteViewed,
	"document.completed": models.QuoteSigned,
	"document.declined":  models.QuoteDeclined,
	"document.voided":    models.QuoteExpired,
}

// PandaDoc handles batched webhook deliveries signed through the query string.
type PandaDoc struct {
	key []byte
}

func NewPandaDoc(key string) *PandaDoc {
	return &PandaDoc{key: []byte(key)}
}

func (p *PandaDoc) Name() string { return "pandadoc" }

func (p *PandaDoc) Parse(d Delivery) ([]Event, error) {
	got, err := hex.DecodeString(d.Query.Get("signature"))
	if err != nil || !hmac.Equal(got, sign(p.key, d.Body)) {
		return nil, ErrBadSignature
	}

	var batch []struct {
		Event string `json:"event"`
		Data  struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(d.Body, &batch); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	events := make([]Event, 0, len(batch))
	for _, it := range batch {
		if it.Data.ID == "" {
			return nil, fmt.Errorf("%w: missing document id", ErrMalformed)
		}
		ev := Event{Provider: p.Name(), EnvelopeID: it.Data.ID, Name: it.Event}
		if it.Event == "document_state_changed" {
			// state changes share one event name; the status tells them apart
			ev.Name = it.Data.Status
			ev.Status = pandaDocStatuses[it.Data.Status]
		}
		events = append(events, ev)
	}
	return events, nil
}

// SignPandaDoc returns the signature query value for body.
func SignPandaDoc(key string, body []byte) string {
	return hex.EncodeToString(sign([]byte(key), body))
}
