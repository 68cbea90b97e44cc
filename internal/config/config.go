package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	_ "github.com/joho/godotenv/autoload"
)

// Postgres holds the connection settings for the relational store.
type Postgres struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Schema   string
}

func (p Postgres) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		p.Username, p.Password, p.Host, p.Port, p.Database, p.Schema,
	)
}

// Gateway holds the credentials and endpoints for the external payment
// provider. PublicKey authenticates payment creation; SecretKey signs every
// other provider call. The split is a provider requirement.
type Gateway struct {
	BaseURL     string
	MerchantID  string
	PublicKey   string
	SecretKey   string
	CallbackURL string
	ReturnURL   string
}

type Config struct {
	Port        string
	CORSOrigins []string
	DB          Postgres
	Gateway     Gateway
	// DeliveryFee is the flat fee applied when an order chooses delivery.
	DeliveryFee decimal.Decimal
}

// Load builds the configuration from the environment. A .env file in the
// working directory is picked up via godotenv autoload.
func Load() (*Config, error) {
	fee, err := decimal.NewFromString(envOr("BOOKMATE_DELIVERY_FEE", "500"))
	if err != nil {
		return nil, fmt.Errorf("parse BOOKMATE_DELIVERY_FEE: %w", err)
	}
	if fee.IsNegative() {
		return nil, fmt.Errorf("BOOKMATE_DELIVERY_FEE must not be negative")
	}

	cfg := &Config{
		Port:        envOr("BOOKMATE_PORT", "8080"),
		CORSOrigins: strings.Split(envOr("BOOKMATE_CORS_ORIGINS", "http://localhost:3000"), ","),
		DB: Postgres{
			Host:     envOr("BOOKMATE_DB_HOST", "localhost"),
			Port:     envOr("BOOKMATE_DB_PORT", "5432"),
			Username: envOr("BOOKMATE_DB_USERNAME", "postgres"),
			Password: os.Getenv("BOOKMATE_DB_PASSWORD"),
			Database: envOr("BOOKMATE_DB_DATABASE", "bookmate"),
			Schema:   envOr("BOOKMATE_DB_SCHEMA", "public"),
		},
		Gateway: Gateway{
			BaseURL:     envOr("OPAY_BASE_URL", "https://testapi.opaycheckout.com"),
			MerchantID:  os.Getenv("OPAY_MERCHANT_ID"),
			PublicKey:   os.Getenv("OPAY_PUBLIC_KEY"),
			SecretKey:   os.Getenv("OPAY_SECRET_KEY"),
			CallbackURL: envOr("OPAY_CALLBACK_URL", "http://localhost:8080/api/v1/payments/callback"),
			ReturnURL:   envOr("OPAY_RETURN_URL", "http://localhost:8080/api/v1/payments/return"),
		},
		DeliveryFee: fee,
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
