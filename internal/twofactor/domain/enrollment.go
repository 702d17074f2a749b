package domain

// EnrollmentState tracks setup progress. Transitions are strictly forward;
// the only way back is abandoning the enrollment entirely.
type EnrollmentState int

const (
	StateNotStarted EnrollmentState = iota
	StateSelectingMethod
	StateConfiguringMethod
	StateVerifying
	StateIssuingBackupCodes
	StateCompleted
)

var stateNames = map[EnrollmentState]string{
	StateNotStarted:         "not_started",
	StateSelectingMethod:    "selecting_method",
	StateConfiguringMethod:  "configuring_method",
	StateVerifying:          "verifying",
	StateIssuingBackupCodes: "issuing_backup_codes",
	StateCompleted:          "completed",
}

func (s EnrollmentState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Next returns the state that follows s in the setup sequence.
// StateCompleted is terminal and returns itself.
func (s EnrollmentState) Next() EnrollmentState {
	if s >= StateCompleted {
		return StateCompleted
	}
	return s + 1
}

// EnrollmentSetup is returned when the authenticator method is selected.
// The secret is uncommitted at this point; it must not be persisted until
// the user proves possession with a valid code.
type EnrollmentSetup struct {
	Method          Method `json:"method"`
	Secret          string `json:"secret,omitempty"`            // base32, authenticator only
	ProvisioningURI string `json:"provisioning_uri,omitempty"`  // otpauth:// URL for QR scanning
	ManualEntryCode string `json:"manual_entry_code,omitempty"` // base32 in 4-char groups
	QRCodePNG       []byte `json:"qr_code_png,omitempty"`       // rendered QR image
}
