package esign

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmhub/internal/config"
	"crmhub/internal/models"
)

func TestDocuSign_Parse(t *testing.T) {
	p := NewDocuSign("ds-secret")
	body := []byte(`{"event":"envelope-completed","data":{"envelopeId":"env-42"}}`)

	t.Run("valid signature", func(t *testing.T) {
		h := http.Header{}
		h.Set(DocuSignSignatureHeader, SignDocuSign("ds-secret", body))

		events, err := p.Parse(Delivery{Header: h, Body: body})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, Event{Provider: "docusign", EnvelopeID: "env-42", Name: "envelope-completed",
			Status: models.QuoteSigned}, events[0])
		assert.Equal(t, "docusign:env-42:envelope-completed", events[0].Key())
	})

	t.Run("wrong key", func(t *testing.T) {
		h := http.Header{}
		h.Set(DocuSignSignatureHeader, SignDocuSign("other", body))
		_, err := p.Parse(Delivery{Header: h, Body: body})
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := p.Parse(Delivery{Header: http.Header{}, Body: body})
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("tampered body", func(t *testing.T) {
		h := http.Header{}
		h.Set(DocuSignSignatureHeader, SignDocuSign("ds-secret", body))
		_, err := p.Parse(Delivery{Header: h, Body: bytes.Replace(body, []byte("42"), []byte("43"), 1)})
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("unknown event keeps empty status", func(t *testing.T) {
		b := []byte(`{"event":"envelope-sent","data":{"envelopeId":"env-42"}}`)
		h := http.Header{}
		h.Set(DocuSignSignatureHeader, SignDocuSign("ds-secret", b))
		events, err := p.Parse(Delivery{Header: h, Body: b})
		require.NoError(t, err)
		assert.Equal(t, models.QuoteStatus(""), events[0].Status)
	})

	t.Run("signed but malformed", func(t *testing.T) {
		b := []byte(`{"event":"envelope-completed"}`)
		h := http.Header{}
		h.Set(DocuSignSignatureHeader, SignDocuSign("ds-secret", b))
		_, err := p.Parse(Delivery{Header: h, Body: b})
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func helloSignBody(apiKey, eventType, requestID string) string {
	return `{"event":{"event_type":"` + eventType + `","event_time":"1700000000","event_hash":"` +
		SignHelloSign(apiKey, "1700000000", eventType) + `"},"signature_request":{"signature_request_id":"` +
		requestID + `"}}`
}

func TestHelloSign_Parse(t *testing.T) {
	p := NewHelloSign("hs-key")

	t.Run("urlencoded form", func(t *testing.T) {
		body := url.Values{"json": {helloSignBody("hs-key", "signature_request_all_signed", "sr-1")}}.Encode()
		h := http.Header{}
		h.Set("Content-Type", "application/x-www-form-urlencoded")

		events, err := p.Parse(Delivery{Header: h, Body: []byte(body)})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "sr-1", events[0].EnvelopeID)
		assert.Equal(t, models.QuoteSigned, events[0].Status)
	})

	t.Run("multipart form", func(t *testing.T) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		require.NoError(t, w.WriteField("json", helloSignBody("hs-key", "signature_request_viewed", "sr-2")))
		require.NoError(t, w.Close())
		h := http.Header{}
		h.Set("Content-Type", w.FormDataContentType())

		events, err := p.Parse(Delivery{Header: h, Body: buf.Bytes()})
		require.NoError(t, err)
		assert.Equal(t, models.QuoteViewed, events[0].Status)
	})

	t.Run("raw json", func(t *testing.T) {
		h := http.Header{}
		h.Set("Content-Type", "application/json")
		events, err := p.Parse(Delivery{Header: h, Body: []byte(helloSignBody("hs-key", "signature_request_declined", "sr-3"))})
		require.NoError(t, err)
		assert.Equal(t, models.QuoteDeclined, events[0].Status)
	})

	t.Run("hash made with another key", func(t *testing.T) {
		h := http.Header{}
		h.Set("Content-Type", "application/json")
		_, err := p.Parse(Delivery{Header: h, Body: []byte(helloSignBody("nope", "signature_request_all_signed", "sr-1"))})
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("callback test is verified and empty", func(t *testing.T) {
		h := http.Header{}
		h.Set("Content-Type", "application/json")
		events, err := p.Parse(Delivery{Header: h, Body: []byte(helloSignBody("hs-key", "callback_test", ""))})
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("form without json field", func(t *testing.T) {
		h := http.Header{}
		h.Set("Content-Type", "application/x-www-form-urlencoded")
		_, err := p.Parse(Delivery{Header: h, Body: []byte("foo=bar")})
		assert.ErrorIs(t, err, ErrMalformed)
	})

	assert.Equal(t, "Hello API Event Received", p.Ack())
}

func TestPandaDoc_Parse(t *testing.T) {
	p := NewPandaDoc("pd-key")
	body := []byte(`[
		{"event":"document_state_changed","data":{"id":"doc-1","status":"document.completed"}},
		{"event":"document_state_changed","data":{"id":"doc-2","status":"document.viewed"}},
		{"event":"recipient_completed","data":{"id":"doc-1","status":"document.completed"}}
	]`)

	t.Run("batch", func(t *testing.T) {
		events, err := p.Parse(Delivery{Query: url.Values{"signature": {SignPandaDoc("pd-key", body)}}, Body: body})
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, models.QuoteSigned, events[0].Status)
		assert.Equal(t, "document.completed", events[0].Name)
		assert.Equal(t, models.QuoteViewed, events[1].Status)
		assert.Equal(t, models.QuoteStatus(""), events[2].Status)
	})

	t.Run("bad signature", func(t *testing.T) {
		_, err := p.Parse(Delivery{Query: url.Values{"signature": {"zz"}}, Body: body})
		assert.ErrorIs(t, err, ErrBadSignature)
	})

	t.Run("not an array", func(t *testing.T) {
		b := []byte(`{"event":"x"}`)
		_, err := p.Parse(Delivery{Query: url.Values{"signature": {SignPandaDoc("pd-key", b)}}, Body: b})
		assert.True(t, errors.Is(err, ErrMalformed))
	})
}

func TestFromConfig(t *testing.T) {
	r := FromConfig(config.WebhooksConfig{DocuSignSecret: "a", PandaDocKey: "b"})
	assert.Equal(t, []string{"docusign", "pandadoc"}, r.Names())

	_, ok := r.Lookup("hellosign")
	assert.False(t, ok, "providers without a secret are not registered")
	p, ok := r.Lookup("docusign")
	require.True(t, ok)
	assert.Equal(t, "docusign", p.Name())
}
