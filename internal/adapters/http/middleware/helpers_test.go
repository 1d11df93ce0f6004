package middleware

import (
	"testing"

	"bookshare/internal/config"
	"bookshare/internal/pkg/jwt"

	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		AppMode: "dev",
		JWT:     config.JWTConfig{Secret: "test-secret", AccessTokenMins: 5},
	}
}

func issue(t *testing.T, cfg *config.Config, userID string) string {
	t.Helper()
	token, err := jwt.GenerateAccessToken(userID, "", cfg.JWT.Secret, cfg.JWT.AccessTokenMins)
	require.NoError(t, err)
	return token
}
