package storekit

import (
	"os"
	"testing"
	"time"
)

func TestGetConfig(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		want    Config
	}{
		{
			name:    "default values",
			envVars: map[string]string{},
			want: Config{
				Driver:               "local",
				SanityCheck:          true,
				LogLevel:             "info",
				LogFormat:            "text",
				LocalBasePath:        "./storage",
				S3Region:             "us-east-1",
				SFTPPort:             22,
				ConsulAddress:        "127.0.0.1:8500",
				SQLitePath:           "./storage.db",
				PresignExpirySeconds: 900,
			},
		},
		{
			name: "s3 configuration",
			envVars: map[string]string{
				"BEAVER_STOREKIT_DRIVER":               "s3",
				"BEAVER_STOREKIT_S3_BUCKET":            "test-bucket",
				"BEAVER_STOREKIT_S3_PREFIX":            "test-prefix/",
				"BEAVER_STOREKIT_S3_REGION":            "us-west-2",
				"BEAVER_STOREKIT_S3_ENDPOINT":          "http://localhost:9000",
				"BEAVER_STOREKIT_S3_FORCE_PATH_STYLE":  "true",
				"BEAVER_STOREKIT_S3_ACCESS_KEY_ID":     "test-key",
				"BEAVER_STOREKIT_S3_SECRET_ACCESS_KEY": "test-secret",
			},
			want: Config{
				Driver:               "s3",
				SanityCheck:          true,
				LogLevel:             "info",
				LogFormat:            "text",
				LocalBasePath:        "./storage",
				S3Region:             "us-west-2",
				S3Bucket:             "test-bucket",
				S3Prefix:             "test-prefix/",
				S3Endpoint:           "http://localhost:9000",
				S3AccessKeyID:        "test-key",
				S3SecretAccessKey:    "test-secret",
				S3ForcePathStyle:     true,
				SFTPPort:             22,
				ConsulAddress:        "127.0.0.1:8500",
				SQLitePath:           "./storage.db",
				PresignExpirySeconds: 900,
			},
		},
		{
			name: "layers",
			envVars: map[string]string{
				"BEAVER_STOREKIT_SANITY_CHECK": "false",
				"BEAVER_STOREKIT_READ_ONLY":    "true",
				"BEAVER_STOREKIT_LOG_ENABLED":  "true",
				"BEAVER_STOREKIT_LOG_LEVEL":    "debug",
				"BEAVER_STOREKIT_LOG_FORMAT":   "json",
			},
			want: Config{
				Driver:               "local",
				ReadOnly:             true,
				LogEnabled:           true,
				LogLevel:             "debug",
				LogFormat:            "json",
				LocalBasePath:        "./storage",
				S3Region:             "us-east-1",
				SFTPPort:             22,
				ConsulAddress:        "127.0.0.1:8500",
				SQLitePath:           "./storage.db",
				PresignExpirySeconds: 900,
			},
		},
		{
			name: "zip archive",
			envVars: map[string]string{
				"BEAVER_STOREKIT_DRIVER":   "zip",
				"BEAVER_STOREKIT_ZIP_PATH": "/tmp/bundle.zip",
			},
			want: Config{
				Driver:               "zip",
				SanityCheck:          true,
				LogLevel:             "info",
				LogFormat:            "text",
				LocalBasePath:        "./storage",
				S3Region:             "us-east-1",
				SFTPPort:             22,
				ConsulAddress:        "127.0.0.1:8500",
				SQLitePath:           "./storage.db",
				ZipPath:              "/tmp/bundle.zip",
				PresignExpirySeconds: 900,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				k := k // capture for closure
				os.Setenv(k, v)
				t.Cleanup(func() { os.Unsetenv(k) })
			}

			cfg, err := GetConfig()
			if err != nil {
				t.Fatalf("GetConfig() error = %v", err)
			}
			if *cfg != tt.want {
				t.Errorf("GetConfig() = %+v, want %+v", *cfg, tt.want)
			}
		})
	}
}

func TestPresignExpiry(t *testing.T) {
	tests := []struct {
		seconds int
		want    time.Duration
	}{
		{0, 15 * time.Minute},
		{-5, 15 * time.Minute},
		{60, time.Minute},
		{3600, time.Hour},
	}
	for _, tt := range tests {
		cfg := &Config{PresignExpirySeconds: tt.seconds}
		if got := cfg.PresignExpiry(); got != tt.want {
			t.Errorf("PresignExpiry(%d) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}
