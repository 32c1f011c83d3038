package esign

import (
	"bytes"
	"crypto/hmac"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"

	"crmhub/internal/models"
)

var helloSignEvents = map[string]models.QuoteStatus{
	"signature_request_viewed":     models.QuoteViewed,
	"signature_request_all_signed": models.QuoteSigned,
	"signature_request_declined":   models.QuoteDeclined,
	"signature_request_expired":    models.QuoteExpired,
	"signature_request_canceled":   models.QuoteExpired,
}

// HelloSign handles callbacks whose event hash is keyed with the API key.
type HelloSign struct {
	apiKey []byte
}

func NewHelloSign(apiKey string) *HelloSign {
	return &HelloSign{apiKey: []byte(apiKey)}
}

func (p *HelloSign) Name() string { return "hellosign" }

// Ack is the exact body HelloSign expects before it stops retrying.
func (p *HelloSign) Ack() string { return "Hello API Event Received" }

func (p *HelloSign) Parse(d Delivery) ([]Event, error) {
	raw, err := helloSignJSON(d)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Event struct {
			Type string `json:"event_type"`
			Time string `json:"event_time"`
			Hash string `json:"event_hash"`
		} `json:"event"`
		SignatureRequest struct {
			ID string `json:"signature_request_id"`
		} `json:"signature_request"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	got, err := hex.DecodeString(payload.Event.Hash)
	if err != nil || !hmac.Equal(got, sign(p.apiKey, []byte(payload.Event.Time+payload.Event.Type))) {
		return nil, ErrBadSignature
	}
	if payload.Event.Type == "callback_test" {
		return nil, nil
	}
	if payload.SignatureRequest.ID == "" {
		return nil, fmt.Errorf("%w: missing signature_request_id", ErrMalformed)
	}
	return []Event{{
		Provider:   p.Name(),
		EnvelopeID: payload.SignatureRequest.ID,
		Name:       payload.Event.Type,
		Status:     helloSignEvents[payload.Event.Type],
	}}, nil
}

// helloSignJSON extracts the "json" form field; HelloSign posts either
// multipart or urlencoded forms, and plain JSON is accepted as well.
func helloSignJSON(d Delivery) ([]byte, error) {
	mediaType, params, _ := mime.ParseMediaType(d.Header.Get("Content-Type"))
	switch {
	case mediaType == "multipart/form-data":
		form, err := multipart.NewReader(bytes.NewReader(d.Body), params["boundary"]).ReadForm(1 << 20)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		defer form.RemoveAll()
		if v := form.Value["json"]; len(v) > 0 {
			return []byte(v[0]), nil
		}
		return nil, fmt.Errorf("%w: no json field", ErrMalformed)
	case mediaType == "application/x-www-form-urlencoded":
		vals, err := url.ParseQuery(string(d.Body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if v := vals.Get("json"); v != "" {
			return []byte(v), nil
		}
		return nil, fmt.Errorf("%w: no json field", ErrMalformed)
	case strings.HasPrefix(strings.TrimSpace(string(d.Body)), "{"):
		return d.Body, nil
	}
	return nil, fmt.Errorf("%w: unsupported content type %q", ErrMalformed, mediaType)
}

// SignHelloSign returns the event_hash for an event.
func SignHelloSign(apiKey, eventTime, eventType string) string {
	return hex.EncodeToString(sign([]byte(apiKey), []byte(eventTime+eventType)))
}
