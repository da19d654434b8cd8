package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type PasargadConfig struct {
	MerchantCode    string
	TerminalCode    string
	CertificatePath string
	CallbackURL     string
}

type Config struct {
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	AppPort string
	AppEnv  string

	RedisAddr     string
	RedisPassword string

	JWTSecret string

	Pasargad PasargadConfig
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		DBHost:     os.Getenv("DB_HOST"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBPort:     os.Getenv("DB_PORT"),

		AppPort: os.Getenv("APP_PORT"),
		AppEnv:  os.Getenv("APP_ENV"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		JWTSecret: os.Getenv("SECRET_KEY"),

		Pasargad: PasargadConfig{
			MerchantCode:    os.Getenv("PASARGAD_MERCHANT_CODE"),
			TerminalCode:    os.Getenv("PASARGAD_TERMINAL_CODE"),
			CertificatePath: os.Getenv("PASARGAD_CERTIFICATE_PATH"),
			CallbackURL:     os.Getenv("PASARGAD_CALLBACK_URL"),
		},
	}

	if cfg.DBHost == "" {
		log.Fatal("Environment variables not loaded properly")
	}

	return cfg
}
