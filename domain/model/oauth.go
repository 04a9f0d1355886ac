package model

import "time"

// OAuthTransportStateTTL bounds the validity of a connect flow.
const OAuthTransportStateTTL = 10 * time.Minute

// OAuthTransportState travels in an encrypted cookie between the connect redirect
// and the platform callback. It is never stored server side.
type OAuthTransportState struct {
	State        string    `json:"s"`
	CodeVerifier *string   `json:"v,omitempty"`
	RedirectURI  string    `json:"r"`
	Platform     Platform  `json:"p"`
	UserID       string    `json:"u"`
	IssuedAt     time.Time `json:"t"`
}

func (s *OAuthTransportState) Expired(now time.Time) bool {
	return now.After(s.IssuedAt.Add(OAuthTransportStateTTL))
}

// CallbackParams are the query parameters a platform sends to the callback.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}
