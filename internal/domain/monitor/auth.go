package monitor

type AuthType string

const (
	AuthNone  AuthType = "none"
	AuthBasic AuthType = "basic"
	AuthToken AuthType = "token"
	AuthLogin AuthType = "login"
)

const (
	DefaultTokenPath    = "token"
	DefaultHeaderName   = "Authorization"
	DefaultHeaderPrefix = "Bearer"
)

type AuthConfig struct {
	Type     AuthType `json:"type"`
	Username string   `json:"username,omitempty"`
	Password string   `json:"password,omitempty"`

	// token variant
	TokenURL  string `json:"token_url,omitempty"`
	TokenPath string `json:"token_path,omitempty"`

	HeaderName   string `json:"header_name,omitempty"`
	HeaderPrefix string `json:"header_prefix,omitempty"`

	// login variant
	LoginURL     string         `json:"login_url,omitempty"`
	LoginPayload map[string]any `json:"login_payload,omitempty"`
	TokenField   string         `json:"token_field,omitempty"`
	CookieName   string         `json:"cookie_name,omitempty"`
}

func (a AuthConfig) TokenPathOrDefault() string {
	if a.TokenPath == "" {
		return DefaultTokenPath
	}
	return a.TokenPath
}

func (a AuthConfig) HeaderNameOrDefault() string {
	if a.HeaderName == "" {
		return DefaultHeaderName
	}
	return a.HeaderName
}

func (a AuthConfig) HeaderPrefixOrDefault() string {
	if a.HeaderPrefix == "" {
		return DefaultHeaderPrefix
	}
	return a.HeaderPrefix
}
