package secrets

// DefaultRules returns the rules for secrets commonly found in browser
// traffic and console output. Header rules match both the raw "Name: value"
// form and the serialized JSON form "Name":"value".
func DefaultRules() []Rule {
	return []Rule{
		// Headers
		{
			ID:          "authorization-header",
			Description: "Authorization header value",
			Pattern:     `(?i)"?(?:authorization|proxy-authorization)"?\s*[:=]\s*"?((?:bearer|basic|token|digest)\s+[^"\s,]+)`,
			Severity:    "high",
		},
		{
			ID:          "cookie-header",
			Description: "Cookie or Set-Cookie header value",
			Pattern:     `(?i)"?(?:set-)?cookie"?\s*[:=]\s*"([^"]+)"`,
			Severity:    "high",
		},
		{
			ID:          "api-key-header",
			Description: "API key header value",
			Pattern:     `(?i)"?x-(?:api-key|auth-token|csrf-token|xsrf-token)"?\s*[:=]\s*"?([^"\s,]{8,})`,
			Severity:    "high",
		},

		// URLs
		{
			ID:          "url-token",
			Description: "Credential in URL query string",
			Pattern:     `(?i)[?&](?:access_token|id_token|refresh_token|api_key|apikey|token|sig|signature|password)=([^&"\s#]+)`,
			Severity:    "medium",
		},
		{
			ID:          "url-userinfo",
			Description: "Credentials embedded in URL",
			Pattern:     `(?i)[a-z][a-z0-9+.-]*://[^/\s:@"]+:([^@\s/"]+)@`,
			Severity:    "high",
		},

		// Tokens recognizable by shape
		{
			ID:          "jwt",
			Description: "JSON Web Token",
			Pattern:     `eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*`,
			Severity:    "medium",
		},
		{
			ID:          "aws-access-key-id",
			Description: "AWS Access Key ID",
			Pattern:     `(?:A3T[A-Z0-9]|AKIA|ASIA)[A-Z0-9]{16}`,
			Severity:    "high",
		},
		{
			ID:          "github-token",
			Description: "GitHub token",
			Pattern:     `(?:ghp|gho|ghu|ghs)_[A-Za-z0-9]{36}|github_pat_[A-Za-z0-9_]{22,}`,
			Severity:    "high",
		},
		{
			ID:          "stripe-key",
			Description: "Stripe API Key",
			Pattern:     `(?:sk|rk)_(?:live|test)_[A-Za-z0-9]{24,}`,
			Severity:    "high",
		},
		{
			ID:          "google-api-key",
			Description: "Google API Key",
			Pattern:     `AIza[A-Za-z0-9_\-]{35}`,
			Severity:    "high",
		},
		{
			ID:          "slack-token",
			Description: "Slack Token",
			Pattern:     `xox[baprs]-[A-Za-z0-9\-]{10,}`,
			Severity:    "high",
		},

		// Assignments echoed by application code
		{
			ID:          "generic-secret",
			Description: "Password or secret assignment",
			Pattern:     `(?i)(?:password|passwd|secret|client_secret)"?\s*[:=]\s*['"]?([^\s'",}]{8,})`,
			Severity:    "high",
		},
		{
			ID:          "private-key",
			Description: "Private Key",
			Pattern:     `-----BEGIN (?:RSA |DSA |EC |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`,
			Severity:    "high",
		},
	}
}
