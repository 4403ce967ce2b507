package handlers

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"hud-backend/pkg/auth"
	"hud-backend/pkg/dashboard"
	"hud-backend/pkg/docstore"
	"hud-backend/pkg/middleware"
	"hud-backend/pkg/utils"
)

// writeError 将领域错误映射为API响应
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *dashboard.ValidationError
	switch {
	case errors.As(err, &ve):
		utils.WriteValidationErrorResponse(w, ve.Message, ve.Field)
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, auth.ErrUnknownUser):
		utils.WriteNotFoundResponse(w, "Resource not found")
	case errors.Is(err, docstore.ErrInvalidPath):
		utils.WriteBadRequestResponse(w, err.Error())
	case errors.Is(err, dashboard.ErrNoUser),
		errors.Is(err, middleware.ErrUnauthenticated),
		errors.Is(err, auth.ErrInvalidCredentials):
		utils.WriteUnauthorizedResponse(w, err.Error())
	default:
		logrus.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		utils.WriteInternalServerErrorResponse(w, err.Error())
	}
}

// requireUserID 返回当前用户ID，未认证时写出401
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, err := middleware.RequireUser(r.Context())
	if err != nil {
		utils.WriteUnauthorizedResponse(w, "Authentication required")
		return "", false
	}
	return user.ID, true
}
