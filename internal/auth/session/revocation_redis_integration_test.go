//go:build integration

package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkspot/pkg/testutil/containers"
)

func TestRedisRevocationList(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	list := NewRedisRevocationList(rc.Client)
	ctx := context.Background()

	revoked, err := list.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, list.Revoke(ctx, "jti-1", time.Minute))
	revoked, err = list.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	ttl, err := rc.Client.TTL(ctx, revokedKeyPrefix+"jti-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	issuer := NewIssuer("secret", "parkspot", WithRevocationList(list))
	signed, err := issuer.Issue(alice)
	require.NoError(t, err)
	claims, err := issuer.Decode(ctx, signed.Token)
	require.NoError(t, err)
	require.NoError(t, issuer.Revoke(ctx, claims))
	_, err = issuer.Decode(ctx, signed.Token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}
