package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

const (
	// EnvUpdateServerUser is the environment variable holding the update-server admin user.
	EnvUpdateServerUser = "BALROG_ADMIN"
	// EnvUpdateServerPassword is the environment variable holding the update-server admin password.
	EnvUpdateServerPassword = "BALROG_PASSWORD"
)

// ErrMissingCredentials is returned when update-server credentials are absent from the environment.
var ErrMissingCredentials = errors.New("could not run without username or/and password")

// Credentials authenticate against the update-server admin API.
type Credentials struct {
	// Username is the admin API user.
	Username string
	// Password is the admin API password.
	Password string
}

// LoadCredentials reads update-server credentials from the environment.
func LoadCredentials() (*Credentials, error) {
	v := viper.New()

	if err := v.BindEnv("username", EnvUpdateServerUser); err != nil {
		return nil, fmt.Errorf("bind %s: %w", EnvUpdateServerUser, err)
	}

	if err := v.BindEnv("password", EnvUpdateServerPassword); err != nil {
		return nil, fmt.Errorf("bind %s: %w", EnvUpdateServerPassword, err)
	}

	creds := &Credentials{
		Username: v.GetString("username"),
		Password: v.GetString("password"),
	}

	if creds.Username == "" || creds.Password == "" {
		return nil, fmt.Errorf("%s/%s: %w", EnvUpdateServerUser, EnvUpdateServerPassword, ErrMissingCredentials)
	}

	return creds, nil
}
