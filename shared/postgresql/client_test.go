package postgresql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_DSN(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{
			name: "plain values",
			config: Config{
				Host:     "localhost",
				Port:     5432,
				User:     "media",
				Password: "secret",
				Database: "media_db",
				SSLMode:  "disable",
			},
			want: "host=localhost port=5432 user=media password=secret dbname=media_db sslmode=disable connect_timeout=5",
		},
		{
			name: "password needs quoting",
			config: Config{
				Host:           "db",
				Port:           5432,
				User:           "media",
				Password:       `it's a \secret`,
				Database:       "media_db",
				ConnectTimeout: 10 * time.Second,
			},
			want: `host=db port=5432 user=media password='it\'s a \\secret' dbname=media_db connect_timeout=10`,
		},
		{
			name:   "empty values are omitted",
			config: Config{Host: "db", Port: 5432},
			want:   "host=db port=5432 connect_timeout=5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.DSN())
		})
	}
}
