package types

type CreatePassRequest struct {
	SiteID        string `json:"site_id"`
	PurposeID     string `json:"purpose_id"`
	VisitDateTime string `json:"visit_date_time"`
	DeviceID      string `json:"device_id,omitempty"`
}

type Pass struct {
	PassID            string  `json:"pass_id"`
	OwnerID           string  `json:"owner_id"`
	SiteID            string  `json:"site_id"`
	PurposeID         string  `json:"purpose_id"`
	VisitDateTime     string  `json:"visit_date_time"`
	Status            string  `json:"status"`
	UsedFlag          bool    `json:"used_flag"`
	RevokedFlag       bool    `json:"revoked_flag"`
	CreatedTimestamp  string  `json:"created_timestamp"`
	ApprovedTimestamp *string `json:"approved_timestamp"`
	UsedTimestamp     *string `json:"used_timestamp"`
	ExpiryTimestamp   *string `json:"expiry_timestamp"`
	DeviceID          string  `json:"device_id,omitempty"`
}

type PassResponse struct {
	Pass    Pass   `json:"pass"`
	Message string `json:"message,omitempty"`
}

type PassListResponse struct {
	Passes []Pass `json:"passes"`
}

// ApproveRequest: a nil TTLHours means the configured default.
type ApproveRequest struct {
	TTLHours *int `json:"ttl_hours,omitempty"`
}

type ReasonRequest struct {
	Reason string `json:"reason,omitempty"`
}

type QRResponse struct {
	QRPayload string `json:"qr_payload"`
	PassID    string `json:"pass_id"`
	Timestamp string `json:"timestamp"`
	Signature string `json:"signature"`
	ExpiresIn int    `json:"expires_in"`
	Message   string `json:"message,omitempty"`
}
