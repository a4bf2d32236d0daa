package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"
)

// DefaultSection is the profile used when no section matches the branch
const DefaultSection = "default"

// Remote configuration keys
const (
	KeyAccessKeyID     = "S3_ACCESS_KEY_ID"
	KeySecretAccessKey = "S3_SECRET_ACCESS_KEY"
	KeyBucketName      = "S3_BUCKET_NAME"
	KeyUploadLocation  = "S3_UPLOAD_LOCATION"
	KeyRegion          = "S3_REGION"
	KeyEndpointURL     = "S3_ENDPOINT_URL"
	KeyDriver          = "S3_DRIVER"
	KeyMaxRetries      = "S3_MAX_RETRIES"
)

// EnvEndpointURL overrides the endpoint of every profile when set
const EnvEndpointURL = "S3_ENDPOINT_URL"

var requiredKeys = []string{KeyAccessKeyID, KeySecretAccessKey, KeyBucketName}

// Driver selects the object store client
type Driver string

const (
	DriverAWS   Driver = "aws"
	DriverMinio Driver = "minio"
)

// ErrConfiguration is matched by every remote configuration error
var ErrConfiguration = errors.New("configuration error")

// MissingFileError is returned when the remote configuration file does not exist
type MissingFileError struct {
	Path string
}

func (e *MissingFileError) Error() string {
	return fmt.Sprintf("cannot find the configuration file: %s", e.Path)
}

func (e *MissingFileError) Is(target error) bool { return target == ErrConfiguration }

// MissingSectionError is returned when neither the profile nor the default section exists
type MissingSectionError struct {
	Path    string
	Profile string
}

func (e *MissingSectionError) Error() string {
	return fmt.Sprintf("%s is missing a usable section (tried %q and %q)", e.Path, e.Profile, DefaultSection)
}

func (e *MissingSectionError) Is(target error) bool { return target == ErrConfiguration }

// MissingKeyError is returned when a required key is absent from the selected section
type MissingKeyError struct {
	Section string
	Key     string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("%s is missing the required option %s", e.Section, e.Key)
}

func (e *MissingKeyError) Is(target error) bool { return target == ErrConfiguration }

// Remote holds the store settings of one profile
type Remote struct {
	Section         string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	UploadLocation  string
	Region          string
	EndpointURL     string
	Driver          Driver
	// MaxRetries caps the attempts of the aws driver, 0 keeps the SDK default
	MaxRetries int
}

// LoadRemote reads the profile named after the branch, falling back to the default section
func LoadRemote(path, profile string) (*Remote, error) {
	path = os.ExpandEnv(path)

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &MissingFileError{Path: path}
		}
		return nil, fmt.Errorf("failed to stat configuration file: %w", err)
	}

	file, err := ini.LoadSources(ini.LoadOptions{InsensitiveKeys: true}, path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
	}

	section := availableSection(file, profile, DefaultSection)
	if section == nil {
		return nil, &MissingSectionError{Path: path, Profile: profile}
	}

	for _, key := range requiredKeys {
		if !section.HasKey(key) {
			return nil, &MissingKeyError{Section: section.Name(), Key: key}
		}
	}

	r := &Remote{
		Section:         section.Name(),
		AccessKeyID:     section.Key(KeyAccessKeyID).String(),
		SecretAccessKey: section.Key(KeySecretAccessKey).String(),
		BucketName:      section.Key(KeyBucketName).String(),
		UploadLocation:  section.Key(KeyUploadLocation).String(),
		Region:          section.Key(KeyRegion).String(),
		EndpointURL:     section.Key(KeyEndpointURL).String(),
		Driver:          Driver(strings.ToLower(section.Key(KeyDriver).String())),
	}

	if section.HasKey(KeyMaxRetries) {
		n, err := section.Key(KeyMaxRetries).Int()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %s must be an integer: %v", ErrConfiguration, r.Section, KeyMaxRetries, err)
		}
		r.MaxRetries = n
	}

	if env := os.Getenv(EnvEndpointURL); env != "" {
		r.EndpointURL = env
	}

	r.applyDefaults()

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// availableSection returns the first existing section among names
func availableSection(file *ini.File, names ...string) *ini.Section {
	for _, name := range names {
		if name == "" {
			continue
		}
		if file.HasSection(name) {
			s, err := file.GetSection(name)
			if err == nil {
				return s
			}
		}
	}
	return nil
}

func (r *Remote) applyDefaults() {
	if r.Driver == "" {
		r.Driver = DriverAWS
	}
}

// Validate checks the profile for errors
func (r *Remote) Validate() error {
	if r.MaxRetries < 0 {
		return fmt.Errorf("%w: %s: %s must not be negative", ErrConfiguration, r.Section, KeyMaxRetries)
	}

	switch r.Driver {
	case DriverAWS:
	case DriverMinio:
		if r.EndpointURL == "" {
			return fmt.Errorf("%w: %s: %s requires %s", ErrConfiguration, r.Section, DriverMinio, KeyEndpointURL)
		}
	default:
		return fmt.Errorf("%w: %s: invalid %s %q (must be aws or minio)", ErrConfiguration, r.Section, KeyDriver, r.Driver)
	}
	return nil
}
