package profile

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/redmonkez12/devhub-api/internal/account"
	"github.com/redmonkez12/devhub-api/internal/auth"
	"github.com/redmonkez12/devhub-api/internal/email"
	"github.com/redmonkez12/devhub-api/internal/httputil"
	"github.com/redmonkez12/devhub-api/internal/logging"
	"github.com/redmonkez12/devhub-api/internal/media"
	"github.com/redmonkez12/devhub-api/internal/validator"
	"github.com/redmonkez12/devhub-api/internal/verification"
)

// PhotoField is the multipart field carrying the avatar
const PhotoField = "photo"

// multipart framing allowance on top of the photo limit
const multipartOverhead = 64 << 10

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// ProfileResponse wraps the account summary with a status message
type ProfileResponse struct {
	Message string          `json:"message,omitempty"`
	User    account.Summary `json:"user"`
}

// GetMe returns the signed-in account
// @Summary      Get current account
// @Tags         profile
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} ProfileResponse
// @Failure      401 {object} httputil.ErrorResponse
// @Router       /auth/me [get]
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	a, ok := auth.GetAccountFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	httputil.RespondJSON(w, ProfileResponse{User: a.Summary()}, http.StatusOK)
}

// UpdateMe renames the account and/or requests an email change
// @Summary      Update current account
// @Description  Name changes apply immediately. A new email is confirmed through a link sent to it.
// @Tags         profile
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body Update true "Fields to change"
// @Success      200 {object} ProfileResponse
// @Failure      400 {object} httputil.ErrorResponse "Validation error"
// @Failure      409 {object} httputil.ErrorResponse "Email already in use"
// @Router       /auth/me [put]
func (h *Handler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, ok := auth.GetAccountIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	var req Update
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid profile update body", "error", err.Error())
		httputil.RespondError(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	result, err := h.service.UpdateProfile(r.Context(), id, req)
	if err != nil {
		if errors.Is(err, email.ErrNotificationFailed) {
			httputil.RespondError(w,
				"profile saved, but the confirmation email could not be sent; try the change again",
				httputil.CodeNotificationFailed, http.StatusInternalServerError)
			return
		}
		respondServiceError(w, r, err)
		return
	}

	message := "Profile updated"
	if result.EmailChangeRequested {
		message = "Profile updated. Check your new email address to confirm the change."
	}
	httputil.RespondJSON(w, ProfileResponse{Message: message, User: result.Account.Summary()}, http.StatusOK)
}

// ConfirmNewEmail consumes an email-change link
// @Summary      Confirm new email address
// @Tags         profile
// @Produce      json
// @Param        token query string true "Email change token"
// @Success      200 {object} ProfileResponse
// @Failure      400 {object} httputil.ErrorResponse "Invalid or expired token"
// @Failure      409 {object} httputil.ErrorResponse "Email already in use"
// @Router       /auth/confirm-new-email [get]
func (h *Handler) ConfirmNewEmail(w http.ResponseWriter, r *http.Request) {
	ticket, ok := auth.TicketFromRequest(w, r)
	if !ok {
		return
	}

	a, err := h.service.ConfirmEmailChange(r.Context(), ticket)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	logging.GetLoggerFromContext(r.Context()).Info("email changed", "account_id", a.ID)
	httputil.RespondJSON(w, ProfileResponse{Message: "Email address updated", User: a.Summary()}, http.StatusOK)
}

// UpdatePhoto uploads a new avatar
// @Summary      Upload profile photo
// @Description  JPEG, PNG or WebP up to 2 MiB. The image is resized to fit 500x500.
// @Tags         profile
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        photo formData file true "Image file"
// @Success      200 {object} ProfileResponse
// @Failure      400 {object} httputil.ErrorResponse "Photo missing"
// @Failure      413 {object} httputil.ErrorResponse "Photo too large"
// @Failure      415 {object} httputil.ErrorResponse "Unsupported image type"
// @Router       /auth/me/photo [put]
func (h *Handler) UpdatePhoto(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	id, ok := auth.GetAccountIDFromContext(r.Context())
	if !ok {
		httputil.RespondError(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	maxBytes := h.service.MaxPhotoBytes()
	if r.ContentLength > maxBytes+multipartOverhead {
		respondTooLarge(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondTooLarge(w)
			return
		}
		logger.Warn("invalid multipart body", "error", err.Error())
		httputil.RespondError(w, "photo is required", httputil.CodePhotoRequired, http.StatusBadRequest)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, _, err := r.FormFile(PhotoField)
	if err != nil {
		httputil.RespondError(w, "photo is required", httputil.CodePhotoRequired, http.StatusBadRequest)
		return
	}
	defer file.Close()

	// one byte past the limit is enough for the processor to reject it
	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		logger.Error("failed to read photo", "error", err)
		httputil.RespondError(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	a, err := h.service.UpdatePhoto(r.Context(), id, data)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	logger.Info("profile photo updated", "account_id", a.ID)
	httputil.RespondJSON(w, ProfileResponse{Message: "Profile photo updated", User: a.Summary()}, http.StatusOK)
}

func respondTooLarge(w http.ResponseWriter) {
	httputil.RespondError(w, "photo exceeds the maximum size", httputil.CodePayloadTooLarge, http.StatusRequestEntityTooLarge)
}

func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validator.ValidationError
	if errors.As(err, &verr) {
		httputil.RespondValidation(w, verr.Errors)
		return
	}

	switch {
	case errors.Is(err, media.ErrPayloadTooLarge):
		respondTooLarge(w)
	case errors.Is(err, media.ErrUnsupportedMediaType):
		httputil.RespondError(w, "photo must be a JPEG, PNG or WebP image", httputil.CodeUnsupportedMediaType, http.StatusUnsupportedMediaType)
	case errors.Is(err, ErrEmailInUse):
		httputil.RespondError(w, "email already exists", httputil.CodeEmailAlreadyExists, http.StatusConflict)
	case errors.Is(err, ErrConflict):
		httputil.RespondError(w, ErrConflict.Error(), httputil.CodeConflict, http.StatusConflict)
	case errors.Is(err, verification.ErrInvalidOrExpiredToken):
		httputil.RespondError(w, "Invalid or expired token", httputil.CodeInvalidOrExpiredTicket, http.StatusBadRequest)
	case errors.Is(err, account.ErrNotFound):
		httputil.RespondError(w, "account not found", httputil.CodeNotFound, http.StatusNotFound)
	case errors.Is(err, ErrStorageFailure):
		logging.GetLoggerFromContext(r.Context()).Error("photo upload failed", "error", err)
		httputil.RespondError(w, "photo could not be stored", httputil.CodeStorageFailed, http.StatusInternalServerError)
	default:
		logging.GetLoggerFromContext(r.Context()).Error("request failed", "error", err)
		httputil.RespondError(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
	}
}
