package storekit

import (
	"time"

	"github.com/gobeaver/beaver-kit/config"
)

type Config struct {
	// Driver to use (memory, local, s3, gcs, azure, sftp, consul, sqlite, zip)
	Driver string `env:"STOREKIT_DRIVER,default:local" mapstructure:"driver"`

	// Layers
	SanityCheck bool   `env:"STOREKIT_SANITY_CHECK,default:true" mapstructure:"sanity_check"`
	ReadOnly    bool   `env:"STOREKIT_READ_ONLY,default:false" mapstructure:"read_only"`
	LogEnabled  bool   `env:"STOREKIT_LOG_ENABLED,default:false" mapstructure:"log_enabled"`
	LogLevel    string `env:"STOREKIT_LOG_LEVEL,default:info" mapstructure:"log_level"`
	LogFormat   string `env:"STOREKIT_LOG_FORMAT,default:text" mapstructure:"log_format"`

	// Memory driver configuration
	MemoryMaxSize int64 `env:"STOREKIT_MEMORY_MAX_SIZE,default:0" mapstructure:"memory_max_size"`

	// Local driver configuration
	LocalBasePath string `env:"STOREKIT_LOCAL_BASE_PATH,default:./storage" mapstructure:"local_base_path"`

	// S3 driver configuration
	S3Region          string `env:"STOREKIT_S3_REGION,default:us-east-1" mapstructure:"s3_region"`
	S3Bucket          string `env:"STOREKIT_S3_BUCKET" mapstructure:"s3_bucket"`
	S3Prefix          string `env:"STOREKIT_S3_PREFIX" mapstructure:"s3_prefix"`
	S3Endpoint        string `env:"STOREKIT_S3_ENDPOINT" mapstructure:"s3_endpoint"`
	S3AccessKeyID     string `env:"STOREKIT_S3_ACCESS_KEY_ID" mapstructure:"s3_access_key_id"`
	S3SecretAccessKey string `env:"STOREKIT_S3_SECRET_ACCESS_KEY" mapstructure:"s3_secret_access_key"`
	S3ForcePathStyle  bool   `env:"STOREKIT_S3_FORCE_PATH_STYLE,default:false" mapstructure:"s3_force_path_style"`

	// GCS (Google Cloud Storage) driver configuration
	GCSBucket          string `env:"STOREKIT_GCS_BUCKET" mapstructure:"gcs_bucket"`
	GCSPrefix          string `env:"STOREKIT_GCS_PREFIX" mapstructure:"gcs_prefix"`
	GCSCredentialsFile string `env:"STOREKIT_GCS_CREDENTIALS_FILE" mapstructure:"gcs_credentials_file"` // Path to service account JSON
	GCSProjectID       string `env:"STOREKIT_GCS_PROJECT_ID" mapstructure:"gcs_project_id"`

	// Azure Blob Storage driver configuration
	AzureAccountName   string `env:"STOREKIT_AZURE_ACCOUNT_NAME" mapstructure:"azure_account_name"`
	AzureAccountKey    string `env:"STOREKIT_AZURE_ACCOUNT_KEY" mapstructure:"azure_account_key"`
	AzureContainerName string `env:"STOREKIT_AZURE_CONTAINER_NAME" mapstructure:"azure_container_name"`
	AzurePrefix        string `env:"STOREKIT_AZURE_PREFIX" mapstructure:"azure_prefix"`
	AzureEndpoint      string `env:"STOREKIT_AZURE_ENDPOINT" mapstructure:"azure_endpoint"` // Optional custom endpoint

	// SFTP driver configuration
	SFTPHost       string `env:"STOREKIT_SFTP_HOST" mapstructure:"sftp_host"`
	SFTPPort       int    `env:"STOREKIT_SFTP_PORT,default:22" mapstructure:"sftp_port"`
	SFTPUsername   string `env:"STOREKIT_SFTP_USERNAME" mapstructure:"sftp_username"`
	SFTPPassword   string `env:"STOREKIT_SFTP_PASSWORD" mapstructure:"sftp_password"`
	SFTPPrivateKey string `env:"STOREKIT_SFTP_PRIVATE_KEY" mapstructure:"sftp_private_key"` // Path to private key file
	SFTPBasePath   string `env:"STOREKIT_SFTP_BASE_PATH" mapstructure:"sftp_base_path"`

	// Consul KV driver configuration
	ConsulAddress string `env:"STOREKIT_CONSUL_ADDRESS,default:127.0.0.1:8500" mapstructure:"consul_address"`
	ConsulToken   string `env:"STOREKIT_CONSUL_TOKEN" mapstructure:"consul_token"`
	ConsulPrefix  string `env:"STOREKIT_CONSUL_PREFIX" mapstructure:"consul_prefix"`

	// SQLite driver configuration
	SQLitePath string `env:"STOREKIT_SQLITE_PATH,default:./storage.db" mapstructure:"sqlite_path"`

	// ZIP archive driver configuration. The archive is opened read-only when
	// ReadOnly is set.
	ZipPath string `env:"STOREKIT_ZIP_PATH" mapstructure:"zip_path"`

	// Default expiry for presigned URLs, in seconds
	PresignExpirySeconds int `env:"STOREKIT_PRESIGN_EXPIRY_SECONDS,default:900" mapstructure:"presign_expiry_seconds"`
}

// PresignExpiry returns the configured presign expiry as a duration.
func (c *Config) PresignExpiry() time.Duration {
	if c.PresignExpirySeconds <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.PresignExpirySeconds) * time.Second
}

// GetConfig returns config loaded from environment
func GetConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
