package config

import "github.com/joho/godotenv"

// LoadEnv loads environment variables from a .env file in the working
// directory. Callers decide whether a missing file is fatal.
func LoadEnv() error {
	return godotenv.Load()
}
