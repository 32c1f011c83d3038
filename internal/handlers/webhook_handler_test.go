package handlers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"crmhub/internal/esign"
	"crmhub/internal/models"
)

func webhookRouter(svc *MockSignatureWebhookService) *gin.Engine {
	h := NewWebhookHandler(svc, zap.NewNop())
	r := newEngine()
	r.POST("/webhooks/esign/:provider", h.ESign)
	return r
}

func TestESignWebhook(t *testing.T) {
	const payload = `{"event":"envelope-completed","data":{"envelopeId":"env-1"}}`
	tests := []struct {
		name       string
		path       string
		provider   string
		ack        string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"applied", "/webhooks/esign/docusign", "docusign", "ok", nil, http.StatusOK, "ok"},
		{"provider is case-insensitive", "/webhooks/esign/HelloSign", "hellosign", "Hello API Event Received", nil, http.StatusOK, "Hello API Event Received"},
		{"bad signature", "/webhooks/esign/docusign", "docusign", "", fmt.Errorf("docusign: %w", esign.ErrBadSignature), http.StatusUnauthorized, ""},
		{"unknown provider", "/webhooks/esign/adobesign", "adobesign", "", fmt.Errorf("provider adobesign: %w", models.ErrNotFound), http.StatusNotFound, ""},
		{"malformed", "/webhooks/esign/pandadoc", "pandadoc", "", esign.ErrMalformed, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSignatureWebhookService)
			svc.On("Handle", mock.Anything, tt.provider, mock.MatchedBy(func(d esign.Delivery) bool {
				return string(d.Body) == payload && d.Header.Get("Content-Type") == "application/json"
			})).Return(tt.ack, tt.err)

			w := doJSON(t, webhookRouter(svc), http.MethodPost, tt.path, payload)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
			svc.AssertExpectations(t)
		})
	}
}
