package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/models"
)

func reportRouter(svc *MockReportService, userID, roleID int64) *gin.Engine {
	h := NewReportHandler(svc, zap.NewNop())
	r := newEngine()
	r.Use(actorAs(userID, roleID))
	r.POST("/reports/run", perm(authz.EntityReport, authz.ActionView), h.Run)
	r.GET("/reports/catalog", perm(authz.EntityReport, authz.ActionView), h.Catalog)
	return r
}

func TestReportRun_PassesActorPolicy(t *testing.T) {
	svc := new(MockReportService)
	svc.On("Run", mock.Anything,
		mock.MatchedBy(func(d *models.ReportDefinition) bool {
			return d.Entity == "deals" && len(d.Filters) == 1 && d.Filters[0].Op == "gte"
		}),
		mock.MatchedBy(func(p *authz.Policy) bool {
			return p != nil && p.Scope(authz.EntityDeal, authz.ActionView) == authz.ScopeOwn
		}),
		salesUser,
	).Return(&models.ReportResult{
		Columns: []string{"title", "amount"},
		Rows:    []map[string]any{{"title": "Renewal", "amount": "1200"}},
	}, nil)

	body := `{"entity":"deals","columns":["title","amount"],"filters":[{"field":"amount","op":"gte","value":1000}]}`
	w := doJSON(t, reportRouter(svc, salesUser, authz.RoleSales), http.MethodPost, "/reports/run", body)

	assert.Equal(t, http.StatusOK, w.Code)
	got := decode[models.ReportResult](t, w)
	assert.Equal(t, []string{"title", "amount"}, got.Columns)
	assert.Len(t, got.Rows, 1)
	svc.AssertExpectations(t)
}

func TestReportRun_InvalidDefinition(t *testing.T) {
	svc := new(MockReportService)
	svc.On("Run", mock.Anything, mock.Anything, mock.Anything, int64(1)).Return(nil, models.ErrInvalidInput)

	w := doJSON(t, reportRouter(svc, 1, authz.RoleAdmin), http.MethodPost, "/reports/run", `{"entity":"deals","columns":["password_hash"]}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportCatalog_AuditKeepsMaskedFields(t *testing.T) {
	w := doJSON(t, reportRouter(new(MockReportService), 30, authz.RoleAudit), http.MethodGet, "/reports/catalog", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]map[string]string](t, w)
	assert.ElementsMatch(t, []string{"companies", "contacts", "deals", "quotes", "tasks"}, keys(got))
	// masked, not hidden: still filterable
	assert.Contains(t, got["contacts"], "email")
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
