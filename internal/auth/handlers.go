package auth

import (
	"net/http"

	"github.com/noah-isme/backend-apotek/internal/common"
)

// Handler exposes HTTP handlers for operator authentication.
type Handler struct {
	Service *Service
}

type loginRequest struct {
	OperatorID string `json:"operatorId" validate:"required,max=64"`
	Password   string `json:"password" validate:"required"`
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
		return
	}
	var req loginRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := h.Service.Login(r.Context(), req.OperatorID, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// Me handles GET /api/v1/auth/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	if h.Service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "auth service not configured", nil)
		return
	}
	operatorID, ok := common.UserID(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid token", nil)
		return
	}
	op, err := h.Service.Me(r.Context(), operatorID)
	if err != nil {
		writeError(w, err)
		return
	}
	session, _ := common.SessionID(r.Context())
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"operator": op, "session_id": session}})
}

func writeError(w http.ResponseWriter, err error) {
	if common.WriteKnownError(w, err) {
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
