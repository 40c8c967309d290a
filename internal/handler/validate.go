package handler

import (
	"errors"
	"net/http"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ctf-arena/internal/auth"
)

const minPasswordLen = 8

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// errInvalidDetails is the single signup rejection: it does not say which
// field collided with an existing account.
const errInvalidDetails = "invalid details"

type signupReq struct {
	Email           string `json:"email"`
	Username        string `json:"username"`
	Country         string `json:"country"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

func (r signupReq) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 255), is.Email),
		validation.Field(&r.Username, validation.Required, validation.Length(3, 32), validation.Match(usernamePattern)),
		validation.Field(&r.Country, validation.Length(0, 64)),
		validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLen, auth.MaxPasswordBytes)),
		validation.Field(&r.PasswordConfirm, validation.Required, validation.By(stringEquals(r.Password))),
	)
}

type loginReq struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"password"`
}

// identifier accepts the legacy username/email keys as well.
func (r loginReq) identifier() string {
	switch {
	case r.Identifier != "":
		return r.Identifier
	case r.Username != "":
		return r.Username
	default:
		return r.Email
	}
}

type changePasswordReq struct {
	CurrentPassword    string `json:"current_password"`
	NewPassword        string `json:"new_password"`
	NewPasswordConfirm string `json:"new_password_confirm"`
}

func (r changePasswordReq) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(minPasswordLen, auth.MaxPasswordBytes)),
		validation.Field(&r.NewPasswordConfirm, validation.Required, validation.By(stringEquals(r.NewPassword))),
	)
}

type createChallengeReq struct {
	Title       string `json:"title"`
	Category    string `json:"category"`
	Description string `json:"description"`
	Points      int64  `json:"points"`
	Flag        string `json:"flag"`
}

func (r createChallengeReq) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.Category, validation.Required, validation.Length(1, 64)),
		validation.Field(&r.Description, validation.Length(0, 4000)),
		validation.Field(&r.Points, validation.Required, validation.Min(1)),
		validation.Field(&r.Flag, validation.Required, validation.Length(1, 255)),
	)
}

// createUserReq is the admin variant of signup: no confirmation field, and
// the flags are set by the caller.  IsActive defaults to true.
type createUserReq struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Country  string `json:"country"`
	Password string `json:"password"`
	IsAdmin  bool   `json:"is_admin"`
	IsActive *bool  `json:"is_active"`
}

func (r createUserReq) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 255), is.Email),
		validation.Field(&r.Username, validation.Required, validation.Length(3, 32), validation.Match(usernamePattern)),
		validation.Field(&r.Country, validation.Length(0, 64)),
		validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLen, auth.MaxPasswordBytes)),
	)
}

type updateUserReq struct {
	IsAdmin  *bool   `json:"is_admin"`
	IsActive *bool   `json:"is_active"`
	Password *string `json:"password"`
}

func (r updateUserReq) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.NilOrNotEmpty, validation.Length(minPasswordLen, auth.MaxPasswordBytes)),
	)
}

func stringEquals(want string) validation.RuleFunc {
	return func(value interface{}) error {
		if s, _ := value.(string); s != want {
			return errors.New("values must match")
		}
		return nil
	}
}

// badRequest renders a validation failure, listing field errors when the
// validator produced them.
func badRequest(c echo.Context, msg string, err error) error {
	body := echo.Map{"error": msg}
	var fields validation.Errors
	if errors.As(err, &fields) {
		body["fields"] = fields
	}
	return c.JSON(http.StatusBadRequest, body)
}
