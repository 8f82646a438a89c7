package http

type StartLoginResponse struct {
	Email      string `json:"email"`
	UserExists bool   `json:"user_exists"`
}

type AccountResponse struct {
	ID            uint64 `json:"id"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	GivenName     string `json:"given_name,omitempty"`
	FamilyName    string `json:"family_name,omitempty"`
	PhoneNumber   string `json:"phone_number,omitempty"`
	Job           string `json:"job,omitempty"`
}

type LoginResponse struct {
	Account     AccountResponse `json:"account"`
	AccessToken string          `json:"access_token"`
	ExpiresIn   int64           `json:"expires_in"`
}

type SendVerificationEmailResponse struct {
	EmailSent bool `json:"email_sent"`
}

type VerificationStatusResponse struct {
	Account      AccountResponse `json:"account"`
	NeedsRenewal bool            `json:"needs_email_verification_renewal"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error      string `json:"error"`
	DidYouMean string `json:"did_you_mean,omitempty"`
}
