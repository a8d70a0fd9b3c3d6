package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/filevault/internal/flagx"
)

var flagNames = []string{
	"a", "g", "d", "s", "k", "q", "l", "access-ttl", "blob",
	"u", "p", "b", "r", "e",
	"mongo-uri", "mongo-db", "mongo-bucket",
	"gcs-bucket", "gcs-credentials",
	"log-level", "log-file", "reconcile", "reconcile-fix",
}

// parseFlags overlays command-line flags.
//
//	-a string   HTTP bind address (":8080")
//	-g string   gRPC health bind address (":50051")
//	-d string   PostgreSQL DSN
//	-s string   token secret
//	-k string   encryption secret
//	-q int      quota ceiling, MiB
//	-l int      download token lifetime, seconds
//	-access-ttl duration  access token lifetime ("1h")
//	-blob       blob backend: s3, gridfs, gcs, memory
//	-u/-p/-b/-r/-e  S3 user, password, bucket, region, endpoint
//	-mongo-uri, -mongo-db, -mongo-bucket
//	-gcs-bucket, -gcs-credentials
//	-log-level, -log-file
//	-reconcile  cron spec of the quota reconciliation job ("" disables)
//	-reconcile-fix  rewrite drifted ledger values
func parseFlags(config *Config, args []string) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC health address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "token secret")
	fs.StringVar(&config.EncryptionSecret, "k", config.EncryptionSecret, "encryption secret")

	quotaMiB := fs.Int64("q", config.QuotaCeiling/(1024*1024), "quota ceiling per owner (MiB)")
	ttlSeconds := fs.Int("l", int(config.DownloadTokenTTL.Seconds()), "download token lifetime (seconds)")

	fs.DurationVar(&config.AccessTokenTTL, "access-ttl", config.AccessTokenTTL, "access token lifetime")

	fs.StringVar(&config.BlobBackend, "blob", config.BlobBackend, "blob backend: s3, gridfs, gcs, memory")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "r", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.MongoURI, "mongo-uri", config.MongoURI, "MongoDB URI")
	fs.StringVar(&config.MongoDatabase, "mongo-db", config.MongoDatabase, "MongoDB database")
	fs.StringVar(&config.MongoBucket, "mongo-bucket", config.MongoBucket, "GridFS bucket name")
	fs.StringVar(&config.GCSBucket, "gcs-bucket", config.GCSBucket, "GCS bucket")
	fs.StringVar(&config.GCSCredentialsFile, "gcs-credentials", config.GCSCredentialsFile, "GCS service account JSON file")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")
	fs.StringVar(&config.LogFile, "log-file", config.LogFile, "log file (rotated); stdout when empty")
	fs.StringVar(&config.ReconcileSchedule, "reconcile", config.ReconcileSchedule, "quota reconciliation cron spec")
	fs.BoolVar(&config.ReconcileFix, "reconcile-fix", config.ReconcileFix, "rewrite drifted quota ledger values")

	if err := fs.Parse(flagx.FilterArgs(args, flagNames)); err != nil {
		panic(err)
	}

	config.QuotaCeiling = *quotaMiB * 1024 * 1024
	config.DownloadTokenTTL = time.Duration(*ttlSeconds) * time.Second
}
