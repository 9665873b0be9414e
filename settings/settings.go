package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is read from the config dir.
	ConfigFileName = "config.toml"
	// LocalFileName is read from the working dir.
	LocalFileName = "araki.toml"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "ARAKI"
	// ConfigDirEnv overrides the config directory.
	ConfigDirEnv = "ARAKI_CONFIG_DIR"

	appDir  = "araki"
	envsDir = ".araki/envs"
)

// Settings is the resolved configuration.
type Settings struct {
	Backend      string            `mapstructure:"backend"`
	Org          string            `mapstructure:"org"`
	EnvsDir      string            `mapstructure:"envs_dir"`
	LogLevel     string            `mapstructure:"log_level"`
	LoginTimeout time.Duration     `mapstructure:"login_timeout"`
	GitHub       GitHubSettings    `mapstructure:"github"`
	GitLab       GitLabSettings    `mapstructure:"gitlab"`
	Bitbucket    BitbucketSettings `mapstructure:"bitbucket"`
	Push         PushSettings      `mapstructure:"push"`
	Install      InstallSettings   `mapstructure:"install"`

	// ConfigDir is where the settings file and the
	// token cache live. Not read from the layers.
	ConfigDir string `mapstructure:"-"`
}

// GitHubSettings configures the github backend.
type GitHubSettings struct {
	// APIURL is empty for api.github.com.
	APIURL   string `mapstructure:"api_url"`
	ClientID string `mapstructure:"client_id"`
}

// GitLabSettings configures the gitlab backend.
type GitLabSettings struct {
	Host     string `mapstructure:"host"`
	ClientID string `mapstructure:"client_id"`
}

// BitbucketSettings configures the bitbucket backend.
type BitbucketSettings struct {
	APIURL  string `mapstructure:"api_url"`
	SSHHost string `mapstructure:"ssh_host"`
}

// PushSettings selects what push sends and where.
type PushSettings struct {
	Remote    string `mapstructure:"remote"`
	BranchRef string `mapstructure:"branch_ref"`
	TagRef    string `mapstructure:"tag_ref"`
}

// InstallSettings is the command run after checkout.
type InstallSettings struct {
	Command string `mapstructure:"command"`
}

// Defaults returns the built-in settings. home is used
// for envs_dir.
func Defaults(home string) Settings {
	return Settings{
		Backend:  "github",
		Org:      "openteams-ai",
		EnvsDir:  filepath.Join(home, envsDir),
		LogLevel: "info",
		GitLab: GitLabSettings{
			Host: "https://gitlab.com",
		},
		Push: PushSettings{
			Remote:    "origin",
			BranchRef: "refs/heads/main",
			TagRef:    "refs/tags/{tag}",
		},
		Install: InstallSettings{
			Command: "pixi install",
		},
	}
}

// DefaultConfigDir returns $ARAKI_CONFIG_DIR or the
// araki directory of the user configuration dir.
func DefaultConfigDir() (string, error) {
	const errCtx = "locating config dir"

	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return dir, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return filepath.Join(base, appDir), nil
}

// Load resolves the settings layers. workDir holds the
// optional araki.toml; pass "" for the current
// directory.
func Load(configDir, workDir string) (Settings, error) {
	const errCtx = "loading settings"

	home, err := os.UserHomeDir()
	if err != nil {
		return Settings{}, fmt.Errorf(
			"%s: home dir: %w", errCtx, err,
		)
	}

	v := viper.New()
	setDefaults(v, Defaults(home))

	files := []string{
		filepath.Join(configDir, ConfigFileName),
		filepath.Join(workDir, LocalFileName),
	}

	for _, f := range files {
		if err := merge(v, f); err != nil {
			return Settings{}, fmt.Errorf(
				"%s: %w", errCtx, err,
			)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var s Settings

	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf(
			"%s: decode: %w", errCtx, err,
		)
	}

	s.ConfigDir = configDir

	return s, nil
}

func merge(v *viper.Viper, path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")

	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	return nil
}

// setDefaults registers every key so that
// AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d Settings) {
	v.SetDefault("backend", d.Backend)
	v.SetDefault("org", d.Org)
	v.SetDefault("envs_dir", d.EnvsDir)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("login_timeout", d.LoginTimeout)
	v.SetDefault("github.api_url", d.GitHub.APIURL)
	v.SetDefault("github.client_id", d.GitHub.ClientID)
	v.SetDefault("gitlab.host", d.GitLab.Host)
	v.SetDefault("gitlab.client_id", d.GitLab.ClientID)
	v.SetDefault("bitbucket.api_url", d.Bitbucket.APIURL)
	v.SetDefault("bitbucket.ssh_host", d.Bitbucket.SSHHost)
	v.SetDefault("push.remote", d.Push.Remote)
	v.SetDefault("push.branch_ref", d.Push.BranchRef)
	v.SetDefault("push.tag_ref", d.Push.TagRef)
	v.SetDefault("install.command", d.Install.Command)
}
