package configuration

import (
	"os"

	"github.com/joho/godotenv"

	"socialops/infrastructure/logger"
)

// LoadEnvFromFile loads KEY=VALUE files such as config.env and .env and
// returns the ones it read. Missing files are skipped. Variables already
// present in the environment win.
func LoadEnvFromFile(paths ...string) []string {
	var loaded []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			logger.GetLogger().WithField("file", p).WithField("error", err).Warn("Env file not loaded")
			continue
		}
		loaded = append(loaded, p)
	}
	return loaded
}
