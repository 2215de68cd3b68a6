package types

type ScanRequest struct {
	QRPayload string `json:"qr_payload"`
}

const (
	ResultPass    = "Pass"
	ResultNoPass  = "No Pass"
	ResultRevoked = "Revoked"
)

// Scan reason codes, also recorded as the audit result of scan events.
const (
	CodeGranted          = "PASS"
	CodeInvalidFormat    = "INVALID_FORMAT"
	CodePassNotFound     = "PASS_NOT_FOUND"
	CodeUserNotFound     = "USER_NOT_FOUND"
	CodeInvalidSignature = "INVALID_SIGNATURE"
	CodeExpiredQR        = "EXPIRED_QR"
	CodeSystemPaused     = "SYSTEM_PAUSED"
	CodeSitePaused       = "SITE_PAUSED"
	CodeAlreadyUsed      = "ALREADY_USED"
	CodeRevoked          = "REVOKED"
	CodeExpired          = "EXPIRED"
	CodeNotApproved      = "NOT_APPROVED"
)

type PassDetails struct {
	PassID    string `json:"pass_id"`
	UserID    string `json:"user"`
	SiteID    string `json:"site"`
	PurposeID string `json:"purpose"`
}

type ScanResponse struct {
	Result      string       `json:"result"`
	Reason      string       `json:"reason,omitempty"`
	Code        string       `json:"code,omitempty"`
	PassDetails *PassDetails `json:"pass_details,omitempty"`
	Message     string       `json:"message,omitempty"`
}

// Granted reports whether the scan admitted the holder.
func (r ScanResponse) Granted() bool {
	return r.Result == ResultPass
}
