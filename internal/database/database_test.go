package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "postgres", Password: "secret", DBName: "venues", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=postgres password=secret dbname=venues sslmode=disable", cfg.DSN())
}
