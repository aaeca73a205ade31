package domain

// Account is a registered user. Email is the unique key, compared exactly as received.
// Password is stored verbatim.
type Account struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type RequestVerificationRequest struct {
	Email string `json:"email" validate:"required"`
}

type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required"`
	Code  string `json:"code" validate:"required"`
}

type SignupRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResult is returned by signup and login.
type AuthResult struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
