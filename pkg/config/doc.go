// Package config loads application configuration from environment variables
// and optional .env files.
//
// Each package in this repository declares its own Config struct with `env`
// tags; this package provides the single entry point that parses them:
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
// Parsing is delegated to github.com/caarlos0/env, .env file support to
// github.com/joho/godotenv.
package config
