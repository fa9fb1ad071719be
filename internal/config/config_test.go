package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"port zero", func(c *Config) { c.Server.HTTP.Port = 0 }, "server.http.port"},
		{"bad mode", func(c *Config) { c.Server.HTTP.Mode = "prod" }, "server.http.mode"},
		{"grpc disabled ignores port", func(c *Config) { c.Server.GRPC.Port = -1 }, ""},
		{"grpc port", func(c *Config) {
			c.Server.GRPC.Enabled = true
			c.Server.GRPC.Port = 70000
		}, "server.grpc.port"},
		{"grpc message size", func(c *Config) {
			c.Server.GRPC.Enabled = true
			c.Server.GRPC.MaxRecvMsgSize = -1
		}, "max_recv_msg_size"},
		{"bad level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"postgres missing db", func(c *Config) {
			c.Database.Postgres.Enabled = true
			c.Database.Postgres.DBName = ""
		}, "dbname"},
		{"postgres disabled ignores fields", func(c *Config) { c.Database.Postgres.Host = "" }, ""},
		{"redis negative db", func(c *Config) {
			c.Cache.Redis.Enabled = true
			c.Cache.Redis.DB = -1
		}, "cache.redis.db"},
		{"kafka without topic", func(c *Config) {
			c.Messaging.Kafka.Enabled = true
			c.Messaging.Kafka.Topic = ""
		}, "topic"},
		{"minio without credentials", func(c *Config) { c.Storage.MinIO.Enabled = true }, "credentials"},
		{"lifecycle zero", func(c *Config) { c.Simulation.Lifecycle = 0 }, "lifecycle"},
		{"operational hours", func(c *Config) { c.Simulation.OperationalHours = -1 }, "operational_hours"},
		{"occupancy one", func(c *Config) { c.Simulation.AllowableBerthOccupancy = 1 }, "allowable_berth_occupancy"},
		{"station occupancy", func(c *Config) { c.Simulation.AllowableStationOccupancy = 2 }, "allowable_station_occupancy"},
		{"utilisation", func(c *Config) { c.Simulation.EnergyUtilisation = 1.2 }, "energy_utilisation"},
		{"iterations", func(c *Config) { c.Simulation.MaxIterations = 0 }, "max_iterations"},
		{"gearing", func(c *Config) { c.Finance.Gearing = 120 }, "gearing"},
		{"tax", func(c *Config) { c.Finance.TaxRate = 1 }, "tax_rate"},
		{"inflation", func(c *Config) { c.Finance.Inflation = -1 }, "inflation"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}
