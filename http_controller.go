package account

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

func GetRouterSession(c router.Context, key string) (*SessionObject, error) {
	cookie := c.Locals(key)
	if cookie == nil {
		return nil, ErrUnableToFindSession
	}

	claims, ok := cookie.(AuthClaims)
	if claims == nil || !ok {
		return nil, ErrUnableToMapClaims
	}

	return sessionFromAuthClaims(claims)
}

func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountControllerOption) {

	controller := NewAccountController(opts...)

	app.
		Get(controller.Routes.Login,
			controller.LoginShow,
		).
		SetName("sign-in.get")

	app.
		Post(
			controller.Routes.Login,
			controller.LoginPost,
		).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(fmt.Sprintf("%s/:uid/:token", controller.Routes.Activate), controller.Activate).
		SetName("activate.get")

	protected := controller.Auther.ProtectedRoute(
		controller.Config,
		controller.Auther.MakeClientRouteAuthErrorHandler(false),
	)

	app.Get(controller.Routes.Profile, protected(controller.ProfileShow)).
		SetName("profile.get")
	app.Post(controller.Routes.Profile, protected(controller.ProfileUpdate)).
		SetName("profile.post")

	app.Get(controller.Routes.PasswordChange, protected(controller.PasswordChangeShow)).
		SetName("pwd-change.get")
	app.Post(controller.Routes.PasswordChange, protected(controller.PasswordChangePost)).
		SetName("pwd-change.post")

	app.Get(controller.Routes.DeleteAccount, protected(controller.DeleteAccountShow)).
		SetName("delete-account.get")
	app.Post(controller.Routes.DeleteAccount, protected(controller.DeleteAccountPost)).
		SetName("delete-account.post")
}

type AccountControllerRoutes struct {
	Login          string
	Logout         string
	Register       string
	Activate       string
	Profile        string
	PasswordChange string
	DeleteAccount  string
}

type AccountControllerViews struct {
	Login          string
	Register       string
	Profile        string
	PasswordChange string
	DeleteAccount  string
}

type AccountController struct {
	Debug          bool
	Logger         Logger
	Repo           RepositoryManager
	Routes         *AccountControllerRoutes
	Views          *AccountControllerViews
	Auther         HTTPAuthenticator
	Config         Config
	Assets         AssetStore
	Mailer         Mailer
	Tokens         ActivationTokenIssuer
	ActivationLink func(encodedUserID, token string) string
	ErrorHandler   router.ErrorHandler
}

type AccountControllerOption func(*AccountController) *AccountController

func NewAccountController(opts ...AccountControllerOption) *AccountController {
	c := &AccountController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AccountControllerRoutes{
			Login:          "/login",
			Logout:         "/logout",
			Register:       "/register",
			Activate:       "/account/active",
			Profile:        "/profile",
			PasswordChange: "/password",
			DeleteAccount:  "/delete-account",
		},
		Views: &AccountControllerViews{
			Login:          "login",
			Register:       "register",
			Profile:        "profile",
			PasswordChange: "password_change",
			DeleteAccount:  "delete_account",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in account controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in account controller...")
	}

	if c.Tokens == nil {
		panic("Missing ActivationTokenIssuer in account controller...")
	}

	return c
}

func (a *AccountController) WithLogger(logger Logger) *AccountController {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

func (a *AccountController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession will return the password
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AccountController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		fmt.Println("======= ACCOUNT LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("============================")
	}

	if err := a.Auther.Login(ctx, payload); err != nil {
		errs["authentication"] = "Authentication Error"
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors":  errs,
			"payload": payload,
		})
	}

	redirect := a.Auther.GetRedirect(ctx, "/")

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *AccountController) LogOut(ctx router.Context) error {
	a.Auther.Logout(ctx)
	return ctx.Redirect("/", router.StatusTemporaryRedirect)
}

func (a *AccountController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegisterUserMessage{},
	})
}

// RegistrationCreatePayload is the form payload
type RegistrationCreatePayload struct {
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Username        string `form:"username" json:"username"`
	Email           string `form:"email" json:"email"`
	Phone           string `form:"phone_number" json:"phone_number"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {

	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Length(1, 200)),
		validation.Field(&r.Username, validation.Length(1, 150)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.Length(10, 11), is.Digit),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AccountController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		errs := map[string]string{}
		errs["form"] = "Failed to parse form"
		a.Logger.Error("register user parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		errs := FormatValidationErrorToMap(err)
		a.Logger.Error("register user validate payload: ", "error", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": errs,
		})
	}

	var res *RegisterUserResponse

	req := RegisterUserMessage{
		FirstName:       payload.FirstName,
		LastName:        payload.LastName,
		Username:        payload.Username,
		Email:           payload.Email,
		Phone:           payload.Phone,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
		OnResponse: func(resp *RegisterUserResponse) {
			res = resp
		},
	}

	registerUser := NewRegisterUserHandler(a.Repo, a.Tokens).
		WithMailer(a.Mailer).
		WithLogger(a.Logger)

	if a.ActivationLink != nil {
		registerUser.WithActivationLink(a.ActivationLink)
	}

	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register user error: ", "error", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error registering account",
		}).Render(a.Views.Register, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	if a.Debug {
		fmt.Println("======= ACCOUNT REGISTER ======")
		fmt.Println(print.MaybePrettyJSON(res))
		fmt.Println("===============================")
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": res.Message,
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *AccountController) Activate(ctx router.Context) error {
	input := ActivateAccountMessage{
		UID:   ctx.Param("uid", ""),
		Token: ctx.Param("token", ""),
	}

	activate := NewActivateAccountHandler(a.Repo, a.Tokens).WithLogger(a.Logger)

	if err := activate.Execute(ctx.Context(), input); err != nil {
		a.Logger.Error("account activation error", "error", err)
		return ctx.Status(fiber.StatusBadRequest).
			SendString("Activation link is invalid or has expired")
	}

	return ctx.SendString("Account activated successfully! You can now log in.")
}

func (a *AccountController) ProfileShow(ctx router.Context) error {
	user, err := a.currentUser(ctx)
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.Profile, router.ViewContext{
		"errors": map[string]string{},
		"record": user,
	})
}

// ProfileUpdatePayload is the form payload
type ProfileUpdatePayload struct {
	FirstName string `form:"first_name" json:"first_name"`
	LastName  string `form:"last_name" json:"last_name"`
	Username  string `form:"username" json:"username"`
	Email     string `form:"email" json:"email"`
	Phone     string `form:"phone_number" json:"phone_number"`
	BirthDate string `form:"birth_date" json:"birth_date"`
	Gender    string `form:"gender" json:"gender"`
}

// Validate will validate the payload
func (r ProfileUpdatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Length(1, 200)),
		validation.Field(&r.LastName, validation.Length(1, 200)),
		validation.Field(&r.Username, validation.Length(1, 150)),
		validation.Field(&r.Email, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.Length(10, 11), is.Digit),
		validation.Field(&r.BirthDate, validation.Date("2006-01-02")),
		validation.Field(&r.Gender, validation.In(GenderMale, GenderFemale)),
	)
}

func (r ProfileUpdatePayload) toPatch() (ProfilePatch, error) {
	patch := ProfilePatch{}

	if r.FirstName != "" {
		patch.FirstName = &r.FirstName
	}
	if r.LastName != "" {
		patch.LastName = &r.LastName
	}
	if r.Username != "" {
		patch.Username = &r.Username
	}
	if r.Email != "" {
		patch.Email = &r.Email
	}
	if r.Phone != "" {
		patch.Phone = &r.Phone
	}
	if r.Gender != "" {
		patch.Gender = &r.Gender
	}
	if r.BirthDate != "" {
		birthDate, err := time.Parse("2006-01-02", r.BirthDate)
		if err != nil {
			return patch, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid birth date").
				WithTextCode("INVALID_BIRTH_DATE")
		}
		patch.BirthDate = &birthDate
	}

	return patch, nil
}

func (a *AccountController) ProfileUpdate(ctx router.Context) error {
	session, err := GetRouterSession(ctx, a.Config.GetContextKey())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(ProfileUpdatePayload)

	if err := ctx.Bind(payload); err != nil {
		errs := map[string]string{}
		errs["form"] = "Failed to parse form"
		a.Logger.Error("profile update parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Profile, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		errs := FormatValidationErrorToMap(err)
		a.Logger.Error("profile update validate payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Profile, router.ViewContext{
			"record":     payload,
			"validation": errs,
		})
	}

	patch, err := payload.toPatch()
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	image, err := formImage(ctx, "profile_image")
	if err != nil {
		a.Logger.Error("profile update image parse: ", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	var res *UpdateProfileResponse

	req := UpdateProfileMessage{
		UserID: session.GetUserID(),
		Patch:  patch,
		Image:  image,
		OnResponse: func(resp *UpdateProfileResponse) {
			res = resp
		},
	}

	updateProfile := NewUpdateProfileHandler(a.Repo, a.Assets).WithLogger(a.Logger)

	if err := updateProfile.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("profile update error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error updating profile",
		}).Render(a.Views.Profile, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Profile updated",
	}).Render(a.Views.Profile, router.ViewContext{
		"errors": map[string]string{},
		"record": res.User,
	})
}

func (a *AccountController) PasswordChangeShow(ctx router.Context) error {
	return ctx.Render(a.Views.PasswordChange, router.ViewContext{
		"errors": map[string]string{},
	})
}

// PasswordChangePayload holds values for a password change
type PasswordChangePayload struct {
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r PasswordChangePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(10, 100),
		),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AccountController) PasswordChangePost(ctx router.Context) error {
	session, err := GetRouterSession(ctx, a.Config.GetContextKey())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(PasswordChangePayload)

	if err := ctx.Bind(payload); err != nil {
		errs := map[string]string{}
		errs["form"] = "Failed to parse form"
		a.Logger.Error("password change parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.PasswordChange, router.ViewContext{
			"errors": errs,
		})
	}

	if err := payload.Validate(); err != nil {
		errs := FormatValidationErrorToMap(err)
		a.Logger.Error("password change validate payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.PasswordChange, router.ViewContext{
			"validation": errs,
		})
	}

	req := ChangePasswordMessage{
		UserID:          session.GetUserID(),
		NewPassword:     payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
	}

	changePassword := NewChangePasswordHandler(a.Repo).
		WithMailer(a.Mailer).
		WithLogger(a.Logger)

	if err := changePassword.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("password change error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error changing password",
		}).Render(a.Views.PasswordChange, router.ViewContext{
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Password changed successfully",
	}).Redirect(a.Routes.Profile, fiber.StatusSeeOther)
}

func (a *AccountController) DeleteAccountShow(ctx router.Context) error {
	return ctx.Render(a.Views.DeleteAccount, router.ViewContext{
		"errors": map[string]string{},
	})
}

// DeleteAccountPayload requires the current password to confirm deletion
type DeleteAccountPayload struct {
	Password string `form:"password" json:"password"`
}

// Validate will validate the payload
func (r DeleteAccountPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AccountController) DeleteAccountPost(ctx router.Context) error {
	session, err := GetRouterSession(ctx, a.Config.GetContextKey())
	if err != nil {
		return a.ErrorHandler(ctx, err)
	}

	payload := new(DeleteAccountPayload)

	if err := ctx.Bind(payload); err != nil {
		errs := map[string]string{}
		errs["form"] = "Failed to parse form"
		a.Logger.Error("delete account parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.DeleteAccount, router.ViewContext{
			"errors": errs,
		})
	}

	if err := payload.Validate(); err != nil {
		errs := FormatValidationErrorToMap(err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.DeleteAccount, router.ViewContext{
			"validation": errs,
		})
	}

	req := DeleteAccountMessage{
		UserID:   session.GetUserID(),
		Password: payload.Password,
	}

	deleteAccount := NewDeleteAccountHandler(a.Repo).
		WithAssets(a.Assets).
		WithLogger(a.Logger)

	if err := deleteAccount.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("delete account error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error deleting account",
		}).Render(a.Views.DeleteAccount, router.ViewContext{
			"errors": []string{err.Error()},
		})
	}

	a.Auther.Logout(ctx)

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Your account has been deleted",
	}).Redirect("/", fiber.StatusSeeOther)
}

func (a *AccountController) currentUser(ctx router.Context) (*User, error) {
	session, err := GetRouterSession(ctx, a.Config.GetContextKey())
	if err != nil {
		return nil, err
	}

	user, err := a.Repo.Users().GetByID(ctx.Context(), session.GetUserID())
	if err != nil {
		return nil, err
	}

	return user, nil
}

// formImage extracts an uploaded file from a multipart form body. Returns nil
// when the request is not multipart or the field is absent.
func formImage(ctx router.Context, field string) (*ImageUpload, error) {
	contentType := ctx.Header("Content-Type")
	if contentType == "" {
		return nil, nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "multipart/form-data" {
		return nil, nil
	}

	reader := multipart.NewReader(bytes.NewReader(ctx.Body()), params["boundary"])

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse multipart form")
		}

		if part.FormName() != field || part.FileName() == "" {
			continue
		}

		content, err := io.ReadAll(part)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to read uploaded file")
		}

		return &ImageUpload{
			Filename: part.FileName(),
			Content:  bytes.NewReader(content),
		}, nil
	}
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field-to-message map suitable for rendering next to form inputs.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			out[field] = ferr.Error()
		}
		return out
	}

	out["validation"] = err.Error()
	return out
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
