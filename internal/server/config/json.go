package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/thilojaeggi/fynncloud-backend/internal/flagx"
	"github.com/thilojaeggi/fynncloud-backend/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// It uses timex.Duration for interval fields, which allows parsing both
// string values such as "1s" and integer nanoseconds.
//
// This struct is an intermediate DTO (Data Transfer Object) used only for
// reading JSON configuration files. After unmarshalling, its fields are
// copied into the runtime Config struct which uses time.Duration.
type JsonConfig struct {
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	DatabaseDSN                 string         `json:"database_dsn"`
	UploadTokenSecret           string         `json:"upload_token_secret"`
	UploadTokenValidityDuration timex.Duration `json:"upload_token_validity_duration"`
	MultipartSessionTTL         timex.Duration `json:"multipart_session_ttl"`
	StorageBackend              string         `json:"storage_backend"`
	LocalStorageRoot            string         `json:"local_storage_root"`
	S3RootUser                  string         `json:"s3_root_user"`
	S3RootPassword              string         `json:"s3_root_password"`
	S3Bucket                    string         `json:"s3_bucket"`
	S3Region                    string         `json:"s3_region"`
	S3BaseEndpoint              string         `json:"s3_base_endpoint"`
	MaxChunkSize                int64          `json:"max_chunk_size"`
	SyncEventsEnabled           bool           `json:"sync_events_enabled"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The lookup order for the JSON file path is:
//
//	The -c or -config command-line flags.
//	If it is not set, no JSON file is loaded.
//
// If the file path is found, parseJson attempts to read and unmarshal it
// into a JsonConfig. The resulting values are copied into the target Config.
// If the file cannot be read or contains invalid JSON, the function panics.
//
// The caller is expected to merge these values with defaults and
// command-line flags as part of the full configuration process.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = c.EndpointAddrHTTP
	config.DatabaseDSN = c.DatabaseDSN
	config.UploadTokenSecret = c.UploadTokenSecret
	config.UploadTokenValidityDuration = time.Duration(c.UploadTokenValidityDuration.Duration)
	config.MultipartSessionTTL = time.Duration(c.MultipartSessionTTL.Duration)
	config.StorageBackend = c.StorageBackend
	config.LocalStorageRoot = c.LocalStorageRoot
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.MaxChunkSize = c.MaxChunkSize
	config.SyncEventsEnabled = c.SyncEventsEnabled
}
