package types

type LoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
	DeviceID string `json:"device_id,omitempty"`
}

type GateLoginRequest struct {
	TabletID    string `json:"tablet_id"`
	Password    string `json:"password"`
	GPSLocation string `json:"gps_location,omitempty"`
}

type LoginResponse struct {
	Token     string     `json:"token"`
	ExpiresIn int64      `json:"expires_in"`
	User      *Principal `json:"user,omitempty"`
	Gate      *Principal `json:"gate,omitempty"`
	Message   string     `json:"message"`
}

type MeResponse struct {
	Role      string    `json:"role"`
	Principal Principal `json:"principal"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	// Status is the pass's current status on invalid_transition errors.
	Status string `json:"status,omitempty"`
}
