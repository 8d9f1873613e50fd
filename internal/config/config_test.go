package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Env:              "development",
		LogLevel:         "info",
		DBType:           "file",
		DataDir:          "data",
		LocalToken:       "MOCK-TOKEN",
		DispatchInterval: time.Minute,
		WindowDays:       7,
		Timezone:         "UTC",
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	c := validConfig()
	c.DBType = "postgres"
	assert.Error(t, c.Validate())
	c.DBDSN = "postgres://localhost/pilltime"
	assert.NoError(t, c.Validate())

	c = validConfig()
	c.DBType = "cassandra"
	assert.Error(t, c.Validate())

	c = validConfig()
	c.Env = "production"
	assert.Error(t, c.Validate())
	c.AuthServiceURL = "https://auth.example"
	assert.NoError(t, c.Validate())

	c = validConfig()
	c.DispatchInterval = 100 * time.Millisecond
	assert.Error(t, c.Validate())

	c = validConfig()
	c.WindowDays = 0
	assert.Error(t, c.Validate())

	c = validConfig()
	c.Timezone = "Mars/Olympus"
	assert.Error(t, c.Validate())
}
