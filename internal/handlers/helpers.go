package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/esign"
	"crmhub/internal/logger"
	"crmhub/internal/middleware"
	"crmhub/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxBodyBytes    = 1 << 20
)

// errorStatus maps sentinel errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, models.ErrUnauthorized), errors.Is(err, models.ErrTenantRequired),
		errors.Is(err, esign.ErrBadSignature):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, esign.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// writeError answers with {"error": ...}. Internal errors are logged and
// their text is not sent to the client.
func writeError(c *gin.Context, log *zap.Logger, op string, err error) {
	status := errorStatus(err)
	l := logger.FromGin(c, log)
	if status >= http.StatusInternalServerError {
		l.Error(op, zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	l.Debug(op, zap.Int("status", status), zap.Error(err))
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func forbidden(c *gin.Context) {
	c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
}

func currentActor(c *gin.Context) authz.Actor {
	a, _ := authz.ActorFrom(c.Request.Context())
	return a
}

// parseID reads a positive int64 path parameter; on failure it answers 400.
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// optionalID parses an optional int64 query parameter.
func optionalID(c *gin.Context, name string) (*int64, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: invalid %s", models.ErrInvalidInput, name)
	}
	return &id, nil
}

// pagination reads page (1-based) and size, clamping size to maxPageSize.
func pagination(c *gin.Context) (limit, offset int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", strconv.Itoa(defaultPageSize)))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return size, (page - 1) * size
}

// allowsAny reports whether the actor may act on a record owned by any of
// owners.
func allowsAny(p *authz.Policy, e authz.Entity, a authz.Action, actorID int64, owners ...int64) bool {
	for _, o := range owners {
		if p.AllowsRecord(e, a, actorID, o) {
			return true
		}
	}
	return false
}

// canAccess answers 403 unless the actor's policy admits the record.
func canAccess(c *gin.Context, e authz.Entity, a authz.Action, owners ...int64) bool {
	if allowsAny(middleware.PolicyFrom(c), e, a, currentActor(c).UserID, owners...) {
		return true
	}
	forbidden(c)
	return false
}

// fields clients may send but never change
var immutableFields = map[string]bool{
	"id": true, "tenant_id": true, "created_at": true, "updated_at": true,
}

// decodeBody reads a JSON object into dst after checking that the actor's
// field rules allow writing every key present. Keys are applied on top of
// whatever dst already holds, so an update only touches the sent fields.
func decodeBody(c *gin.Context, e authz.Entity, dst any) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", models.ErrInvalidInput, err)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return fmt.Errorf("%w: body must be a JSON object", models.ErrInvalidInput)
	}
	changed := authz.ChangedFields(body)
	writable := changed[:0]
	for _, f := range changed {
		if !immutableFields[f] {
			writable = append(writable, f)
		}
	}
	if err := middleware.PolicyFrom(c).CheckWritable(e, writable); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	return nil
}

// respond writes v after applying the actor's field rules for e.
func respond(c *gin.Context, log *zap.Logger, status int, e authz.Entity, v any) {
	out, err := middleware.PolicyFrom(c).Redact(e, v)
	if err != nil {
		writeError(c, log, "[http][redact]", err)
		return
	}
	c.JSON(status, out)
}
