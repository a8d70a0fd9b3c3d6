package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/filevault/internal/flagx"
	"github.com/dmitrijs2005/filevault/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Absent keys keep the
// value already in Config.
type JsonConfig struct {
	EndpointAddrHTTP   *string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC   *string         `json:"endpoint_addr_grpc"`
	DatabaseDSN        *string         `json:"database_dsn"`
	SecretKey          *string         `json:"secret_key"`
	EncryptionSecret   *string         `json:"encryption_secret"`
	QuotaCeilingMiB    *int64          `json:"quota_ceiling_mib"`
	DownloadTokenTTL   *timex.Duration `json:"download_token_ttl"`
	AccessTokenTTL     *timex.Duration `json:"access_token_ttl"`
	BlobBackend        *string         `json:"blob_backend"`
	S3RootUser         *string         `json:"s3_root_user"`
	S3RootPassword     *string         `json:"s3_root_password"`
	S3Bucket           *string         `json:"s3_bucket"`
	S3Region           *string         `json:"s3_region"`
	S3BaseEndpoint     *string         `json:"s3_base_endpoint"`
	MongoURI           *string         `json:"mongo_uri"`
	MongoDatabase      *string         `json:"mongo_database"`
	MongoBucket        *string         `json:"mongo_bucket"`
	GCSBucket          *string         `json:"gcs_bucket"`
	GCSCredentialsFile *string         `json:"gcs_credentials_file"`
	LogLevel           *string         `json:"log_level"`
	LogFile            *string         `json:"log_file"`
	ReconcileSchedule  *string         `json:"reconcile_schedule"`
	ReconcileFix       *bool           `json:"reconcile_fix"`
}

// parseJson overlays the file named by -c/-config (or $FILEVAULT_CONFIG).
// A missing or malformed file panics: the operator asked for it explicitly.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigFilePath(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.EncryptionSecret, c.EncryptionSecret)
	if c.QuotaCeilingMiB != nil {
		config.QuotaCeiling = *c.QuotaCeilingMiB * 1024 * 1024
	}
	if c.DownloadTokenTTL != nil {
		config.DownloadTokenTTL = c.DownloadTokenTTL.Duration
	}
	if c.AccessTokenTTL != nil {
		config.AccessTokenTTL = c.AccessTokenTTL.Duration
	}
	setString(&config.BlobBackend, c.BlobBackend)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.MongoURI, c.MongoURI)
	setString(&config.MongoDatabase, c.MongoDatabase)
	setString(&config.MongoBucket, c.MongoBucket)
	setString(&config.GCSBucket, c.GCSBucket)
	setString(&config.GCSCredentialsFile, c.GCSCredentialsFile)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFile, c.LogFile)
	setString(&config.ReconcileSchedule, c.ReconcileSchedule)
	if c.ReconcileFix != nil {
		config.ReconcileFix = *c.ReconcileFix
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
