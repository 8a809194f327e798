package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	auth "github.com/goliatone/go-scoped-auth"
)

func TestIdentityContext(t *testing.T) {
	_, ok := auth.IdentityFromContext(context.Background())
	assert.False(t, ok)

	_, ok = auth.IdentityFromContext(nil)
	assert.False(t, ok)

	identity := auth.Identity{ID: "u1", Email: testEmail, Role: auth.RoleAdmin}
	ctx := auth.WithIdentity(context.Background(), identity)

	got, ok := auth.IdentityFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, identity, got)
}

func TestResourceIDContext(t *testing.T) {
	_, ok := auth.ResourceIDFromContext(context.Background())
	assert.False(t, ok)

	_, ok = auth.ResourceIDFromContext(auth.WithResourceID(context.Background(), ""))
	assert.False(t, ok)

	id, ok := auth.ResourceIDFromContext(auth.WithResourceID(context.Background(), "abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", id)
}
