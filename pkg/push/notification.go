package push

// TargetMode selects how recipients of a notification are chosen.
type TargetMode string

const (
	ModeToken TargetMode = "token"
	ModeUser  TargetMode = "user"
	ModeBulk  TargetMode = "bulk"
)

// NotificationRequest is a normalized, transport-independent send request.
// Platform is required for token sends and is an optional filter otherwise.
type NotificationRequest struct {
	Mode     TargetMode        `json:"mode" validate:"required,oneof=token user bulk"`
	TenantID string            `json:"tenant_id" validate:"required"`
	BundleID string            `json:"bundle_id,omitempty"`
	Platform Platform          `json:"platform,omitempty" validate:"required_if=Mode token"`
	Token    string            `json:"token,omitempty" validate:"required_if=Mode token"`
	UserID   string            `json:"user_id,omitempty" validate:"required_if=Mode user"`
	Title    string            `json:"title,omitempty" validate:"required_if=Mode bulk"`
	Body     string            `json:"body" validate:"required"`
	Category string            `json:"category,omitempty"`
	ImageURL string            `json:"image_url,omitempty" validate:"omitempty,url"`
	Sound    string            `json:"sound,omitempty"`
	Data     map[string]string `json:"data,omitempty"`
}

// Payload is the provider-neutral content handed to an adapter.
type Payload struct {
	Title    string
	Body     string
	Category string
	ImageURL string
	Sound    string
	Data     map[string]string
}

// Payload extracts the content part of the request.
func (r *NotificationRequest) Payload() Payload {
	return Payload{
		Title:    r.Title,
		Body:     r.Body,
		Category: r.Category,
		ImageURL: r.ImageURL,
		Sound:    r.Sound,
		Data:     r.Data,
	}
}

// ProviderResult is the normalized provider response for one accepted send.
type ProviderResult struct {
	ID         string `json:"id,omitempty"`
	StatusCode int    `json:"status_code,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Outcome is the result of one recipient of a dispatch.
type Outcome struct {
	DeviceID  string          `json:"device_id,omitempty"`
	Platform  Platform        `json:"platform"`
	Token     string          `json:"token"`
	Success   bool            `json:"success"`
	Result    *ProviderResult `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
}

// Report aggregates the outcomes of a dispatch. Outcomes holds exactly one entry per
// attempted recipient.
type Report struct {
	ID        string     `json:"dispatch_id"`
	Mode      TargetMode `json:"mode"`
	TenantID  string     `json:"tenant_id"`
	Total     int        `json:"total"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Outcomes  []Outcome  `json:"outcomes"`
}

// NewReport builds a report and its counters from outcomes.
func NewReport(id string, mode TargetMode, tenantID string, outcomes []Outcome) *Report {
	r := &Report{
		ID:       id,
		Mode:     mode,
		TenantID: tenantID,
		Total:    len(outcomes),
		Outcomes: outcomes,
	}
	for _, o := range outcomes {
		if o.Success {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}
	return r
}
