package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"hookswitch/pkg/providers/bitbucket"
	"hookswitch/pkg/providers/brex"
	"hookswitch/pkg/providers/github"
	"hookswitch/pkg/providers/gitlab"
	"hookswitch/pkg/providers/vercel"
	"hookswitch/pkg/webhook"
)

// ErrMissingCredential is returned when neither the enable request nor the
// configuration supplies a required value.
var ErrMissingCredential = errors.New("missing credential")

// Enable request parameter names.
const (
	ParamAccessToken    = "access_token"
	ParamRepository     = "repository"
	ParamProject        = "project"
	ParamProjectID      = "project_id"
	ParamTeamID         = "team_id"
	ParamWorkspace      = "workspace"
	ParamInstallationID = "installation_id"
)

// Resolver builds each provider's enable-args function from request params,
// falling back to configured values.
type Resolver struct {
	cfg Config

	readFile func(string) ([]byte, error)
}

// NewResolver constructs a Resolver.
func NewResolver(cfg Config) *Resolver {
	return &Resolver{cfg: cfg, readFile: os.ReadFile}
}

func pick(req webhook.EnableRequest, param, fallback string) string {
	if value := req.Param(param); value != "" {
		return value
	}
	return fallback
}

func require(provider, name, value string) error {
	if value == "" {
		return fmt.Errorf("%s %s: %w", provider, name, ErrMissingCredential)
	}
	return nil
}

// GitHub resolves a token and "owner/repo". An installation_id param mints an
// installation token when a GitHub App is configured.
func (r *Resolver) GitHub() github.EnableArgsFunc {
	cfg := r.cfg.GitHub
	return func(ctx context.Context, req webhook.EnableRequest) (github.Credentials, error) {
		creds := github.Credentials{
			AccessToken: req.Param(ParamAccessToken),
			Repository:  pick(req, ParamRepository, cfg.Repository),
		}
		if creds.AccessToken == "" {
			if id := req.Param(ParamInstallationID); id != "" && cfg.AppID != 0 {
				token, err := r.installationToken(ctx, id)
				if err != nil {
					return github.Credentials{}, err
				}
				creds.AccessToken = token
			} else {
				creds.AccessToken = cfg.Token
			}
		}
		if err := require(github.Name, ParamAccessToken, creds.AccessToken); err != nil {
			return github.Credentials{}, err
		}
		if err := require(github.Name, ParamRepository, creds.Repository); err != nil {
			return github.Credentials{}, err
		}
		return creds, nil
	}
}

func (r *Resolver) installationToken(ctx context.Context, rawID string) (string, error) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("github installation_id %q: %w", rawID, err)
	}
	if r.cfg.GitHub.PrivateKeyPath == "" {
		return "", fmt.Errorf("github private_key_path: %w", ErrMissingCredential)
	}
	key, err := r.readFile(r.cfg.GitHub.PrivateKeyPath)
	if err != nil {
		return "", fmt.Errorf("github private key: %w", err)
	}
	app := &github.App{
		AppID:      r.cfg.GitHub.AppID,
		PrivateKey: key,
		BaseURL:    r.cfg.GitHub.BaseURL,
	}
	return app.InstallationToken(ctx, id)
}

// GitLab resolves a token and project.
func (r *Resolver) GitLab() gitlab.EnableArgsFunc {
	cfg := r.cfg.GitLab
	return func(_ context.Context, req webhook.EnableRequest) (gitlab.Credentials, error) {
		creds := gitlab.Credentials{
			AccessToken: pick(req, ParamAccessToken, cfg.Token),
			Project:     pick(req, ParamProject, pick(req, ParamProjectID, cfg.Project)),
		}
		if err := require(gitlab.Name, ParamAccessToken, creds.AccessToken); err != nil {
			return gitlab.Credentials{}, err
		}
		if err := require(gitlab.Name, ParamProject, creds.Project); err != nil {
			return gitlab.Credentials{}, err
		}
		return creds, nil
	}
}

// Bitbucket resolves a token, workspace and repository slug.
func (r *Resolver) Bitbucket() bitbucket.EnableArgsFunc {
	cfg := r.cfg.Bitbucket
	return func(_ context.Context, req webhook.EnableRequest) (bitbucket.Credentials, error) {
		creds := bitbucket.Credentials{
			AccessToken: pick(req, ParamAccessToken, cfg.Token),
			Workspace:   pick(req, ParamWorkspace, cfg.Workspace),
			Repository:  pick(req, ParamRepository, cfg.Repository),
		}
		if err := require(bitbucket.Name, ParamAccessToken, creds.AccessToken); err != nil {
			return bitbucket.Credentials{}, err
		}
		if err := require(bitbucket.Name, ParamWorkspace, creds.Workspace); err != nil {
			return bitbucket.Credentials{}, err
		}
		if err := require(bitbucket.Name, ParamRepository, creds.Repository); err != nil {
			return bitbucket.Credentials{}, err
		}
		return creds, nil
	}
}

// Vercel resolves an API key, project id and team id. Registrations are
// always team scoped.
func (r *Resolver) Vercel() vercel.EnableArgsFunc {
	cfg := r.cfg.Vercel
	return func(_ context.Context, req webhook.EnableRequest) (vercel.Credentials, error) {
		creds := vercel.Credentials{
			APIKey:    pick(req, ParamAccessToken, cfg.Token),
			ProjectID: pick(req, ParamProjectID, cfg.ProjectID),
			TeamID:    pick(req, ParamTeamID, cfg.TeamID),
		}
		if err := require(vercel.Name, ParamAccessToken, creds.APIKey); err != nil {
			return vercel.Credentials{}, err
		}
		if err := require(vercel.Name, ParamProjectID, creds.ProjectID); err != nil {
			return vercel.Credentials{}, err
		}
		if err := require(vercel.Name, ParamTeamID, creds.TeamID); err != nil {
			return vercel.Credentials{}, err
		}
		return creds, nil
	}
}

// Brex resolves an API key.
func (r *Resolver) Brex() brex.EnableArgsFunc {
	cfg := r.cfg.Brex
	return func(_ context.Context, req webhook.EnableRequest) (brex.Credentials, error) {
		creds := brex.Credentials{APIKey: pick(req, ParamAccessToken, cfg.Token)}
		if err := require(brex.Name, ParamAccessToken, creds.APIKey); err != nil {
			return brex.Credentials{}, err
		}
		return creds, nil
	}
}
