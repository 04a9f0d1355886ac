package dto

// Res is the error envelope used by middleware rejections.
type Res struct {
	ResponseCode    string `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
}
