package firebase

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	// ErrInvalidCredentials is returned when a credential document cannot be used
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNoProjectID is returned when no project ID can be determined
	ErrNoProjectID = errors.New("no project ID configured")
)

// CredentialSource records which mechanism produced the credentials.
type CredentialSource string

const (
	SourceJSON    CredentialSource = "json"
	SourceFile    CredentialSource = "file"
	SourceDefault CredentialSource = "default"
)

// Environment variables consulted for ambient credentials.
const (
	envApplicationCredentials = "GOOGLE_APPLICATION_CREDENTIALS"
	envGoogleCloudProject     = "GOOGLE_CLOUD_PROJECT"
	envGCloudProject          = "GCLOUD_PROJECT"
)

// ServiceAccount is a Google service-account key document.
type ServiceAccount struct {
	Type         string `json:"type" validate:"required,eq=service_account"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key" validate:"required"`
	ClientEmail  string `json:"client_email" validate:"required,email"`
	ClientID     string `json:"client_id"`
	TokenURI     string `json:"token_uri" validate:"required,url"`
}

// Credentials identify the Firebase project whose ID tokens are accepted.
type Credentials struct {
	Source      CredentialSource
	ProjectID   string
	ClientEmail string
	// Path is set when the credentials were read from disk.
	Path string
}

// CredentialOptions control credential resolution.
type CredentialOptions struct {
	// Source is either an inline JSON service-account document or a path to one.
	Source string
	// ProjectID is used when the credentials carry no project ID.
	ProjectID string
	// Strict disables the fallback to ambient credentials when Source is set
	// but unusable.
	Strict bool
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ResolveCredentials determines the credentials to use. It tries, in order:
// Source parsed as JSON, Source as a file path, and finally ambient
// credentials from the environment.
func ResolveCredentials(opts CredentialOptions, logger *zap.Logger) (*Credentials, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	creds, err := resolve(opts, logger)
	if err != nil {
		return nil, err
	}

	if creds.ProjectID == "" {
		creds.ProjectID = firstNonEmpty(opts.ProjectID, os.Getenv(envGoogleCloudProject), os.Getenv(envGCloudProject))
	}
	if creds.ProjectID == "" {
		return nil, fmt.Errorf("%w: set FIREBASE_PROJECT_ID, %s or a credential with project_id",
			ErrNoProjectID, envGoogleCloudProject)
	}

	logger.Info("firebase credentials resolved",
		zap.String("source", string(creds.Source)),
		zap.String("project_id", creds.ProjectID))
	return creds, nil
}

func resolve(opts CredentialOptions, logger *zap.Logger) (*Credentials, error) {
	source := strings.TrimSpace(opts.Source)
	if source == "" {
		return defaultCredentials()
	}

	creds, jsonErr := credentialsFromJSON([]byte(source))
	if jsonErr == nil {
		creds.Source = SourceJSON
		return creds, nil
	}

	if fileExists(source) {
		creds, err := credentialsFromFile(source)
		if err != nil {
			return nil, err
		}
		creds.Source = SourceFile
		return creds, nil
	}

	// Never echo an inline document; it carries a private key.
	described := "credential JSON"
	if !strings.HasPrefix(source, "{") {
		described = fmt.Sprintf("credential path %q", source)
	}
	if opts.Strict {
		return nil, fmt.Errorf("%w: %s is neither a valid service account nor an existing file: %v",
			ErrInvalidCredentials, described, jsonErr)
	}

	logger.Warn("falling back to default credentials",
		zap.String("reason", described+" unusable"),
		zap.NamedError("parse_error", jsonErr))
	return defaultCredentials()
}

// defaultCredentials reads GOOGLE_APPLICATION_CREDENTIALS when set; otherwise
// the project ID must come from the environment.
func defaultCredentials() (*Credentials, error) {
	path := os.Getenv(envApplicationCredentials)
	if path == "" {
		return &Credentials{Source: SourceDefault}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidCredentials, envApplicationCredentials, err)
	}

	// Application default credentials may be a service account or an
	// authorized user; only the project is needed here.
	var doc struct {
		Type           string `json:"type"`
		ProjectID      string `json:"project_id"`
		QuotaProjectID string `json:"quota_project_id"`
		ClientEmail    string `json:"client_email"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidCredentials, envApplicationCredentials, err)
	}

	return &Credentials{
		Source:      SourceDefault,
		ProjectID:   firstNonEmpty(doc.ProjectID, doc.QuotaProjectID),
		ClientEmail: doc.ClientEmail,
		Path:        path,
	}, nil
}

func credentialsFromFile(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidCredentials, path, err)
	}
	creds, err := credentialsFromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	creds.Path = path
	return creds, nil
}

// credentialsFromJSON parses and validates a service-account document.
func credentialsFromJSON(data []byte) (*Credentials, error) {
	var sa ServiceAccount
	if err := json.Unmarshal(data, &sa); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	if err := validate.Struct(&sa); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCredentials, describeValidation(err))
	}

	if _, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey)); err != nil {
		return nil, fmt.Errorf("%w: private_key: %v", ErrInvalidCredentials, err)
	}

	return &Credentials{
		ProjectID:   sa.ProjectID,
		ClientEmail: sa.ClientEmail,
	}, nil
}

func describeValidation(err error) string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err.Error()
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "eq":
			msgs = append(msgs, fmt.Sprintf("%s must be %q", fe.Field(), fe.Param()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid email", fe.Field()))
		case "url":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid URL", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
