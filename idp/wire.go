package idp

// Operation targets.
const (
	TargetPrefix                 = "AWSCognitoIdentityProviderService."
	TargetSignUp                 = TargetPrefix + "SignUp"
	TargetConfirmSignUp          = TargetPrefix + "ConfirmSignUp"
	TargetInitiateAuth           = TargetPrefix + "InitiateAuth"
	TargetRespondToAuthChallenge = TargetPrefix + "RespondToAuthChallenge"

	HeaderTarget = "X-Amz-Target"
	ContentType  = "application/x-amz-json-1.1"
)

// Auth flows.
const (
	FlowUserPassword = "USER_PASSWORD_AUTH"
	FlowCustom       = "CUSTOM_AUTH"
)

// Attribute names sent at registration.
const (
	AttrEmail      = "email"
	AttrPhone      = "phone_number"
	AttrCustomRole = "custom:role"
)

// Auth parameter and challenge response keys.
const (
	ParamUsername   = "USERNAME"
	ParamPassword   = "PASSWORD"
	ParamSMSCode    = "SMS_MFA_CODE"
	ParamTOTPCode   = "SOFTWARE_TOKEN_MFA_CODE"
	ParamAnswer     = "ANSWER"
	ParamCodeDigits = "codeLength"
)

// Attribute is a named user attribute.
type Attribute struct {
	Name  string
	Value string
}

type SignUpRequest struct {
	ClientId       string
	Username       string
	Password       string
	UserAttributes []Attribute `json:",omitempty"`
}

type CodeDeliveryDetails struct {
	AttributeName  string `json:",omitempty"`
	DeliveryMedium string `json:",omitempty"`
	Destination    string `json:",omitempty"`
}

type SignUpResponse struct {
	UserConfirmed       bool
	UserSub             string               `json:",omitempty"`
	CodeDeliveryDetails *CodeDeliveryDetails `json:",omitempty"`
}

type ConfirmSignUpRequest struct {
	ClientId         string
	Username         string
	ConfirmationCode string
}

type InitiateAuthRequest struct {
	AuthFlow       string
	ClientId       string
	AuthParameters map[string]string
}

type RespondToAuthChallengeRequest struct {
	ChallengeName      string
	ClientId           string
	Session            string
	ChallengeResponses map[string]string
}

type AuthenticationResult struct {
	IdToken      string
	AccessToken  string `json:",omitempty"`
	RefreshToken string `json:",omitempty"`
	ExpiresIn    int    `json:",omitempty"`
	TokenType    string `json:",omitempty"`
}

// AuthResponse is shared by InitiateAuth and RespondToAuthChallenge.
type AuthResponse struct {
	AuthenticationResult *AuthenticationResult `json:",omitempty"`
	ChallengeName        string                `json:",omitempty"`
	Session              string                `json:",omitempty"`
	ChallengeParameters  map[string]string     `json:",omitempty"`
}

// ErrorResponse is the provider's failure body.
type ErrorResponse struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}
