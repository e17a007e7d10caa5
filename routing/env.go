package routing

import (
	"errors"
	"os"

	"github.com/joho/godotenv"
)

// APIKeyEnv names the variable holding the Maps API key.
const APIKeyEnv = "GOOGLE_MAPS_API_KEY"

// ErrMissingAPIKey is returned when no Maps API key is configured.
var ErrMissingAPIKey = errors.New("GOOGLE_MAPS_API_KEY not set")

// LoadAPIKey returns the Maps API key from the environment, falling back to
// the dotenv file at path. A missing file is not an error on its own.
func LoadAPIKey(path string) (string, error) {
	if key := os.Getenv(APIKeyEnv); key != "" {
		return key, nil
	}
	if path == "" {
		path = ".env"
	}
	envFile, err := godotenv.Read(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}
	if key := envFile[APIKeyEnv]; key != "" {
		return key, nil
	}
	return "", ErrMissingAPIKey
}
