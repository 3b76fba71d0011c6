package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// ErrTokenMissing is returned when no bot token is found in the environment.
var ErrTokenMissing = errors.New("bot token not set")

// LoadToken loads envFile into the process environment, if it exists, and
// returns the bot token held in tokenEnv. Variables already set in the
// environment take precedence over the file.
func LoadToken(envFile, tokenEnv string) (string, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	token := strings.TrimSpace(os.Getenv(tokenEnv))
	if token == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrTokenMissing, tokenEnv)
	}
	return token, nil
}

// SaveToken writes the token into envFile, keeping any other variables the
// file already holds, and exports it to the current process.
func SaveToken(envFile, tokenEnv, token string) error {
	env, err := godotenv.Read(envFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read env file %s: %w", envFile, err)
		}
		env = make(map[string]string)
	}
	env[tokenEnv] = token

	if err := godotenv.Write(env, envFile); err != nil {
		return fmt.Errorf("failed to write env file %s: %w", envFile, err)
	}
	if err := os.Chmod(envFile, 0600); err != nil {
		return fmt.Errorf("failed to restrict env file permissions: %w", err)
	}
	return os.Setenv(tokenEnv, token)
}
