package auth

// Config contains per-provider webhook and credential configuration.
type Config struct {
	GitHub    ProviderConfig `yaml:"github"`
	GitLab    ProviderConfig `yaml:"gitlab"`
	Bitbucket ProviderConfig `yaml:"bitbucket"`
	Vercel    ProviderConfig `yaml:"vercel"`
	Brex      ProviderConfig `yaml:"brex"`
}

// ProviderConfig contains webhook and auth configuration for a provider.
type ProviderConfig struct {
	Enabled bool     `yaml:"enabled"`
	Secret  string   `yaml:"secret"`
	Events  []string `yaml:"events"`

	// GitHub App credentials, used when an enable request carries an
	// installation_id.
	AppID          int64  `yaml:"app_id"`
	PrivateKeyPath string `yaml:"private_key_path"`

	// Fallbacks for values missing from the enable request.
	Token      string `yaml:"token"`
	Repository string `yaml:"repository"`
	Project    string `yaml:"project"`
	ProjectID  string `yaml:"project_id"`
	TeamID     string `yaml:"team_id"`
	Workspace  string `yaml:"workspace"`

	BaseURL string `yaml:"base_url"`
}
