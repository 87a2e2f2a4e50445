package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticVerifierDerivesStableSubject(t *testing.T) {
	v := NewStaticVerifier("tools:call", "prompts:get")

	info1, err := v.VerifyAccessToken(context.Background(), "abc")
	require.NoError(t, err)
	info2, err := v.VerifyAccessToken(context.Background(), "abc")
	require.NoError(t, err)

	assert.Equal(t, info1.Subject, info2.Subject)
	assert.Len(t, info1.Subject, 64)
	assert.Equal(t, []string{"tools:call", "prompts:get"}, info1.Scopes)
}

func TestStaticVerifierDifferentTokensDifferentSubjects(t *testing.T) {
	v := NewStaticVerifier()
	info1, err := v.VerifyAccessToken(context.Background(), "abc")
	require.NoError(t, err)
	info2, err := v.VerifyAccessToken(context.Background(), "xyz")
	require.NoError(t, err)
	assert.NotEqual(t, info1.Subject, info2.Subject)
}

func TestStaticVerifierRejectsEmptyToken(t *testing.T) {
	v := NewStaticVerifier()
	_, err := v.VerifyAccessToken(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyToken)
}
