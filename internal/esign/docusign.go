package esign

import (
	"crypto/hmac"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"crmhub/internal/models"
)

const DocuSignSignatureHeader = "X-DocuSign-Signature-1"

var docuSignEvents = map[string]models.QuoteStatus{
	"envelope-delivered": models.QuoteViewed,
	"envelope-completed": models.QuoteSigned,
	"envelope-declined":  models.QuoteDeclined,
	"envelope-voided":    models.QuoteExpired,
}

// DocuSign handles Connect JSON callbacks signed with the account HMAC key.
type DocuSign struct {
	secret []byte
}

func NewDocuSign(secret string) *DocuSign {
	return &DocuSign{secret: []byte(secret)}
}

func (p *DocuSign) Name() string { return "docusign" }

func (p *DocuSign) Parse(d Delivery) ([]Event, error) {
	got, err := base64.StdEncoding.DecodeString(d.Header.Get(DocuSignSignatureHeader))
	if err != nil || !hmac.Equal(got, sign(p.secret, d.Body)) {
		return nil, ErrBadSignature
	}

	var payload struct {
		Event string `json:"event"`
		Data  struct {
			EnvelopeID string `json:"envelopeId"`
		} `json:"data"`
	}
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if payload.Event == "" || payload.Data.EnvelopeID == "" {
		return nil, fmt.Errorf("%w: missing event or envelopeId", ErrMalformed)
	}
	return []Event{{
		Provider:   p.Name(),
		EnvelopeID: payload.Data.EnvelopeID,
		Name:       payload.Event,
		Status:     docuSignEvents[payload.Event],
	}}, nil
}

// SignDocuSign returns the header value DocuSign would send for body.
func SignDocuSign(secret string, body []byte) string {
	return base64.StdEncoding.EncodeToString(sign([]byte(secret), body))
}
