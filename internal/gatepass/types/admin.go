package types

import (
	"encoding/json"
	"strings"
)

// PauseRequest: a missing Paused field means pause.
type PauseRequest struct {
	Paused *bool `json:"paused,omitempty"`
}

func (r PauseRequest) Value() bool {
	return r.Paused == nil || *r.Paused
}

type PauseResponse struct {
	Message string `json:"message"`
	SiteID  string `json:"site_id,omitempty"`
	Paused  bool   `json:"paused"`
}

type SystemStatus struct {
	GlobalPause bool            `json:"global_pause"`
	SitePauses  map[string]bool `json:"site_pauses"`
}

type RegisterGateRequest struct {
	TabletID    string `json:"tablet_id"`
	GPSLocation string `json:"gps_location"`
	SiteID      string `json:"site_id"`
}

type RegisterUserRequest struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id,omitempty"`
}

type Principal struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	PublicKey   string `json:"public_key"`
	KeyID       string `json:"kid,omitempty"`
	DeviceID    string `json:"device_id,omitempty"`
	GPSLocation string `json:"gps_location,omitempty"`
	SiteID      string `json:"site_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type PrincipalResponse struct {
	Principal Principal `json:"principal"`
	Message   string    `json:"message,omitempty"`
}

type PrincipalListResponse struct {
	Principals []Principal `json:"principals"`
}

// PublicKeyResponse describes the verification key held for a principal.
type PublicKeyResponse struct {
	PrincipalID string `json:"principal_id"`
	Kind        string `json:"kind"`
	Algorithm   string `json:"algorithm"`
	KeyID       string `json:"kid"`
	PublicKey   string `json:"public_key"`
	CreatedAt   string `json:"created_at"`
}

type AuditEvent struct {
	ID        int64  `json:"log_id"`
	Timestamp string `json:"timestamp"`
	EventType string `json:"event_type"`
	UserID    string `json:"user_id,omitempty"`
	GateID    string `json:"gate_id,omitempty"`
	PassID    string `json:"pass_id,omitempty"`
	Result    string `json:"result"`
	Details   string `json:"details,omitempty"`
}

type AuditLogResponse struct {
	Logs []AuditEvent `json:"logs"`
}

type SiteStatistics struct {
	Approved  int64 `json:"approved"`
	Requested int64 `json:"requested"`
	Used      int64 `json:"used"`
	Revoked   int64 `json:"revoked"`
}

// Statistics serializes with one passes_<status> key per status, e.g.
// passes_in_process and passes_no_pass.
type Statistics struct {
	TotalUsers  int64
	TotalGates  int64
	TotalPasses int64
	ByStatus    map[string]int64
	SiteID      string
	BySite      map[string]SiteStatistics
}

// StatusKey returns the JSON key for a status count.
func StatusKey(status string) string {
	return "passes_" + strings.ReplaceAll(strings.ToLower(status), " ", "_")
}

func (s Statistics) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"total_users":  s.TotalUsers,
		"total_gates":  s.TotalGates,
		"total_passes": s.TotalPasses,
	}
	for status, n := range s.ByStatus {
		out[StatusKey(status)] = n
	}
	if s.SiteID != "" {
		out["site_id"] = s.SiteID
	} else if s.BySite != nil {
		out["by_site"] = s.BySite
	}
	return json.Marshal(out)
}
