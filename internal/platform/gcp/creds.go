package gcp

import (
	"strings"

	"google.golang.org/api/option"

	"github.com/yungbote/ragdesk-backend/internal/platform/envutil"
)

// ClientOptions turns a credentials value (inline JSON or a file path) into
// client options. Empty falls back to the GOOGLE_APPLICATION_CREDENTIALS*
// variables and then to ambient credentials.
func ClientOptions(creds string) []option.ClientOption {
	creds = strings.TrimSpace(creds)
	if creds == "" {
		creds = envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", "")
	}
	if creds == "" {
		creds = envutil.String("GOOGLE_APPLICATION_CREDENTIALS", "")
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}
