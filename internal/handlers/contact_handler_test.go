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

func contactRouter(svc *MockContactService, userID, roleID int64) *gin.Engine {
	h := NewContactHandler(svc, nil, zap.NewNop())
	r := newEngine()
	r.Use(actorAs(userID, roleID))
	r.GET("/contacts", perm(authz.EntityContact, authz.ActionView), h.List)
	r.GET("/contacts/:id", perm(authz.EntityContact, authz.ActionView), h.GetByID)
	r.PUT("/contacts/:id", perm(authz.EntityContact, authz.ActionEdit), h.Update)
	r.POST("/contacts", perm(authz.EntityContact, authz.ActionCreate), h.Create)
	return r
}

func sampleContact(owner int64) *models.Contact {
	return &models.Contact{
		ID: 5, TenantID: testTenant, OwnerID: owner,
		FirstName: "Ada", LastName: "Lovelace",
		Email: "ada@example.com", Phone: "+15550001234",
		LifecycleStage: models.StageLead, Score: 40,
	}
}

func TestContactList_OwnScopeForcesOwnerFilter(t *testing.T) {
	svc := new(MockContactService)
	svc.On("List", mock.Anything, mock.MatchedBy(func(f models.ContactFilter) bool {
		return f.OwnerID != nil && *f.OwnerID == salesUser && f.Query == "ada"
	})).Return([]*models.Contact{sampleContact(salesUser)}, nil)

	w := doJSON(t, contactRouter(svc, salesUser, authz.RoleSales), http.MethodGet, "/contacts?q=ada&owner_id=8", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	list := decode[[]models.Contact](t, w)
	assert.Len(t, list, 1)
	svc.AssertExpectations(t)
}

func TestContactList_AllScopeKeepsRequestedOwner(t *testing.T) {
	svc := new(MockContactService)
	svc.On("List", mock.Anything, mock.MatchedBy(func(f models.ContactFilter) bool {
		return f.OwnerID != nil && *f.OwnerID == otherUser
	})).Return(nil, nil)

	w := doJSON(t, contactRouter(svc, 1, authz.RoleOperations), http.MethodGet, "/contacts?owner_id=8", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestContactList_BadStage(t *testing.T) {
	svc := new(MockContactService)
	w := doJSON(t, contactRouter(svc, 1, authz.RoleAdmin), http.MethodGet, "/contacts?stage=prospect", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestContactGet_AuditSeesMaskedFields(t *testing.T) {
	svc := new(MockContactService)
	svc.On("GetByID", mock.Anything, int64(5)).Return(sampleContact(otherUser), nil)

	w := doJSON(t, contactRouter(svc, 30, authz.RoleAudit), http.MethodGet, "/contacts/5", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]any](t, w)
	assert.Equal(t, "****.com", got["email"])
	assert.Equal(t, "****1234", got["phone"])
	assert.Equal(t, "Ada", got["first_name"])
}

func TestContactGet_OtherOwnerForbiddenForSales(t *testing.T) {
	svc := new(MockContactService)
	svc.On("GetByID", mock.Anything, int64(5)).Return(sampleContact(otherUser), nil)

	w := doJSON(t, contactRouter(svc, salesUser, authz.RoleSales), http.MethodGet, "/contacts/5", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestContactGet_NotFound(t *testing.T) {
	svc := new(MockContactService)
	svc.On("GetByID", mock.Anything, int64(9)).Return(nil, models.ErrNotFound)

	w := doJSON(t, contactRouter(svc, salesUser, authz.RoleSales), http.MethodGet, "/contacts/9", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestContactUpdate_SalesCannotEditScore(t *testing.T) {
	svc := new(MockContactService)
	svc.On("GetByID", mock.Anything, int64(5)).Return(sampleContact(salesUser), nil)

	w := doJSON(t, contactRouter(svc, salesUser, authz.RoleSales), http.MethodPut, "/contacts/5", `{"score":99}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
	svc.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestContactUpdate_MergesSentFields(t *testing.T) {
	svc := new(MockContactService)
	svc.On("GetByID", mock.Anything, int64(5)).Return(sampleContact(salesUser), nil)
	svc.On("Update", mock.Anything, mock.MatchedBy(func(c *models.Contact) bool {
		return c.ID == 5 && c.FirstName == "Augusta" && c.LastName == "Lovelace" && c.Score == 40
	})).Return(nil)

	w := doJSON(t, contactRouter(svc, salesUser, authz.RoleSales), http.MethodPut, "/contacts/5", `{"first_name":"Augusta","id":77}`)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestContactUpdate_SalesCannotHandOver(t *testing.T) {
	svc := new(MockContactService)
	svc.On("GetByID", mock.Anything, int64(5)).Return(sampleContact(salesUser), nil)

	w := doJSON(t, contactRouter(svc, salesUser, authz.RoleSales), http.MethodPut, "/contacts/5", `{"owner_id":8}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
	svc.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestContactCreate_DefaultsOwnerToActor(t *testing.T) {
	svc := new(MockContactService)
	svc.On("Create", mock.Anything, mock.MatchedBy(func(c *models.Contact) bool {
		return c.OwnerID == salesUser && c.Email == "new@example.com"
	})).Return(nil)

	w := doJSON(t, contactRouter(svc, salesUser, authz.RoleSales), http.MethodPost, "/contacts", `{"first_name":"New","email":"new@example.com"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	got := decode[map[string]any](t, w)
	assert.EqualValues(t, 100, got["id"])
	svc.AssertExpectations(t)
}

func TestContactRoute_AuditCannotCreate(t *testing.T) {
	svc := new(MockContactService)
	w := doJSON(t, contactRouter(svc, 30, authz.RoleAudit), http.MethodPost, "/contacts", `{"first_name":"New"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
