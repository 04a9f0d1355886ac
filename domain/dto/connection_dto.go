package dto

import "socialops/domain/model"

// ConnectStart is what the request layer needs to begin a connect flow: where to
// redirect the browser and the sealed transport cookie to set.
type ConnectStart struct {
	Platform    model.Platform `json:"platform"`
	RedirectURL string         `json:"auth_url"`
	Cookie      string         `json:"-"`
	MaxAge      int            `json:"-"`
}
