package config

import (
	"flag"
	"os"
	"time"

	"github.com/thilojaeggi/fynncloud-backend/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   upload-token HMAC secret key
//	-t int      upload-token validity, minutes
//	-k string   storage backend ("local" or "s3")
//	-l string   local storage root directory
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-m int      max chunk size, bytes
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes using
//     flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in minutes and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-t", "-k", "-l", "-u", "-p", "-b", "-g", "-e", "-m"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.UploadTokenSecret, "s", config.UploadTokenSecret, "upload token secret key")

	uploadTokenValidityDuration := fs.Int("t", int(config.UploadTokenValidityDuration.Minutes()), "upload_token_validity_duration (in minutes)")

	fs.StringVar(&config.StorageBackend, "k", config.StorageBackend, "storage backend: local or s3")
	fs.StringVar(&config.LocalStorageRoot, "l", config.LocalStorageRoot, "local storage root directory")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	maxChunkSize := fs.Int64("m", config.MaxChunkSize, "max chunk size (bytes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.UploadTokenValidityDuration = time.Duration(*uploadTokenValidityDuration) * time.Minute
	config.MaxChunkSize = *maxChunkSize
}
