package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmhub/internal/models"
)

func TestRequire(t *testing.T) {
	t.Run("missing tenant", func(t *testing.T) {
		_, err := Require(context.Background())
		assert.ErrorIs(t, err, models.ErrTenantRequired)
	})

	t.Run("non positive id is rejected", func(t *testing.T) {
		_, err := Require(WithID(context.Background(), 0))
		assert.ErrorIs(t, err, models.ErrTenantRequired)
	})

	t.Run("bound tenant", func(t *testing.T) {
		id, err := Require(WithID(context.Background(), 42))
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)
	})
}
