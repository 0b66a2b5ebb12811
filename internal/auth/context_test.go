package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/idxstock/stockapi/internal/model"
)

func TestIdentityFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, IdentityFromContext(ctx))
	assert.Empty(t, UserIDFromContext(ctx))

	ctx = ContextWithIdentity(ctx, &model.Identity{UserID: "u-1", Role: model.RoleUser})
	assert.Equal(t, "u-1", UserIDFromContext(ctx))
}

func TestIdentitySlot(t *testing.T) {
	outer, observed := WithIdentitySlot(context.Background())
	assert.Nil(t, observed())
	assert.Empty(t, ObservedUserID(outer))

	inner := ContextWithIdentity(outer, &model.Identity{UserID: "u-2", Plan: model.PlanStarter})

	assert.Equal(t, "u-2", UserIDFromContext(inner))
	assert.Equal(t, "u-2", ObservedUserID(outer))
	if id := observed(); assert.NotNil(t, id) {
		assert.Equal(t, model.PlanStarter, id.Plan)
	}
	// The slot is visible to observers only, never as an identity.
	assert.Nil(t, IdentityFromContext(outer))
}
