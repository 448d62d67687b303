package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// App mints installation tokens for a GitHub App. It lets Enable run
// without a personal access token when the caller supplies an
// installation id.
type App struct {
	AppID      int64
	PrivateKey []byte
	BaseURL    string
	HTTPClient *http.Client

	now func() time.Time
}

// JWT signs the short-lived app assertion GitHub expects.
func (a *App) JWT() (string, error) {
	if a.AppID == 0 {
		return "", errors.New("github app id is required")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(a.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("github app private key: %w", err)
	}
	now := time.Now
	if a.now != nil {
		now = a.now
	}
	issued := now().Add(-30 * time.Second)
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(a.AppID, 10),
		IssuedAt:  jwt.NewNumericDate(issued),
		ExpiresAt: jwt.NewNumericDate(issued.Add(9 * time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}

// InstallationToken exchanges the app JWT for an installation access token.
func (a *App) InstallationToken(ctx context.Context, installationID int64) (string, error) {
	if installationID <= 0 {
		return "", errors.New("github installation id is required")
	}
	assertion, err := a.JWT()
	if err != nil {
		return "", err
	}
	client, err := newClient(ctx, a.BaseURL, assertion, a.HTTPClient)
	if err != nil {
		return "", err
	}
	token, resp, err := client.Apps.CreateInstallationToken(ctx, installationID, nil)
	if err != nil {
		return "", upstreamError(resp, err)
	}
	if token.GetToken() == "" {
		return "", errors.New("github installation token response was empty")
	}
	return token.GetToken(), nil
}
