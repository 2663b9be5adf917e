package civi

import "strings"

// Config holds configuration for the CiviCRM REST endpoint.
type Config struct {
	// URL is the base URL of the CiviCRM installation.
	URL string `mapstructure:"url" default:""`
	// SiteKey is the site key configured on the CiviCRM server.
	SiteKey string `mapstructure:"site_key" default:""`
	// UserKey is the API key of the acting API user.
	UserKey string `mapstructure:"user_key" default:""`
	// TimeoutSeconds is the HTTP timeout in seconds.
	TimeoutSeconds int `mapstructure:"timeout_seconds" default:"30"`
	// Debug requests server-side debug output on every call.
	Debug bool `mapstructure:"debug" default:"false"`
}

// RestURL derives the extern/rest.php endpoint from the configured URL.
// The URL may point at the endpoint itself, at the /civicrm path, or at the
// site root.
func (c Config) RestURL() string {
	if strings.HasSuffix(c.URL, "extern/rest.php") {
		return c.URL
	}
	base := strings.TrimSuffix(c.URL, "/civicrm")
	return base + "/sites/all/modules/civicrm/extern/rest.php"
}
