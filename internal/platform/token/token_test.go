package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	dErrors "bastion/pkg/domain-errors"
)

func TestIssueAndValidate(t *testing.T) {
	svc := New("test-signing-key", time.Hour)

	signed, err := svc.Issue("op-1", "admin")
	require.NoError(t, err)

	claims, err := svc.Validate(signed)
	require.NoError(t, err)
	require.Equal(t, "op-1", claims.OperatorID)
	require.Equal(t, "admin", claims.Role)
	require.Equal(t, "op-1", claims.Subject)
}

func TestValidateRejectsWrongKey(t *testing.T) {
	signed, err := New("key-a", time.Hour).Issue("op-1", "")
	require.NoError(t, err)

	_, err = New("key-b", time.Hour).Validate(signed)
	require.Error(t, err)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	issued := time.Now().Add(-2 * time.Hour)
	svc := New("test-signing-key", time.Hour, WithClock(func() time.Time { return issued }))

	signed, err := svc.Issue("op-1", "")
	require.NoError(t, err)

	_, err = New("test-signing-key", time.Hour).Validate(signed)
	require.Error(t, err)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestIssueRequiresOperator(t *testing.T) {
	_, err := New("test-signing-key", time.Hour).Issue("", "")
	require.Error(t, err)
	require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestValidateRejectsGarbage(t *testing.T) {
	_, err := New("test-signing-key", time.Hour).Validate("not-a-token")
	require.Error(t, err)
}
