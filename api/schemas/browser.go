package schemas

// -- Browser Persona Schemas --

// Persona encapsulates the properties used for a consistent browser fingerprint.
type Persona struct {
	UserAgent string   `json:"userAgent"`
	Platform  string   `json:"platform"`
	Languages []string `json:"languages"`
	Width     int64    `json:"width"`
	Height    int64    `json:"height"`
	Mobile    bool     `json:"mobile"`
	Timezone  string   `json:"timezoneId"`
	Locale    string   `json:"locale"`
}

// DefaultPersona provides a fallback persona if none is specified.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	Platform:  "Win32",
	Languages: []string{"ru-RU", "ru", "en-US", "en"},
	Width:     1920,
	Height:    1080,
	Timezone:  "Europe/Moscow",
	Locale:    "ru-RU",
}

// -- Session Artifact Schemas --

// BrowserState is the browser session snapshot reused between sequential replay runs.
type BrowserState struct {
	Cookies []Cookie        `json:"cookies"`
	Origins []OriginStorage `json:"origins"`
}

// Cookie mirrors the subset of CDP cookie fields needed to restore a session.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`
}

// OriginStorage holds the localStorage items of one origin.
type OriginStorage struct {
	Origin       string            `json:"origin"`
	LocalStorage map[string]string `json:"localStorage"`
}

// Empty reports whether the state carries nothing to restore.
func (s *BrowserState) Empty() bool {
	return s == nil || (len(s.Cookies) == 0 && len(s.Origins) == 0)
}
