package web

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"telegram-relay/internal/domain/login"
	"telegram-relay/internal/infra/logger"

	"go.uber.org/zap"
)

const errNotAuthorized = "not authorized"

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	writeResponse(w, []byte("OK"))
}

// handleLogin — GET показывает форму текущей стадии, POST продвигает вход.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requester := requesterFrom(ctx)

	var (
		stage login.Stage
		err   error
	)
	if r.Method == http.MethodPost {
		if err = r.ParseForm(); err != nil {
			s.renderError(w, http.StatusBadRequest, login.StageNoPhone, "invalid form")
			return
		}
		stage, err = s.login.Submit(ctx, requester, login.Submission{
			Phone:    r.PostForm.Get("phone"),
			Code:     r.PostForm.Get("code"),
			Password: r.PostForm.Get("password"),
		})
	} else {
		stage, err = s.login.Stage(ctx, requester)
	}

	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, login.ErrRejected) || errors.Is(err, login.ErrNoPendingPhone) {
			status = http.StatusBadRequest
		}
		logger.Warn("login step failed", zap.String("stage", stage.String()), zap.Int("status", status), zap.Error(err))
		s.renderError(w, status, stage, err.Error())
		return
	}

	s.render(w, http.StatusOK, "layout", PageData{Stage: stage.String()})
}

func (s *Server) renderError(w http.ResponseWriter, status int, stage login.Stage, msg string) {
	s.render(w, status, "fragment", PageData{Stage: stage.String(), Error: msg})
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data PageData) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		logger.Error("template execution error", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	writeResponse(w, buf.Bytes())
}

type memberResponse struct {
	IsMember bool   `json:"ismember"`
	Error    string `json:"error,omitempty"`
}

type existsResponse struct {
	Exists bool `json:"exists"`
}

// handleIsChannelMember — /ischannelmember?ch=<channel>&u=<user>.
func (s *Server) handleIsChannelMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channel := strings.TrimSpace(r.URL.Query().Get("ch"))
	user := strings.TrimSpace(r.URL.Query().Get("u"))
	if channel == "" || user == "" {
		writeJSON(w, http.StatusBadRequest, memberResponse{Error: "ch and u are required"})
		return
	}

	authorized, err := s.lookup.Authorized(ctx)
	if err != nil || !authorized {
		if err != nil {
			logger.Warn("ischannelmember: auth status", zap.Error(err))
		}
		writeJSON(w, http.StatusServiceUnavailable, memberResponse{Error: errNotAuthorized})
		return
	}

	member, err := s.lookup.IsChannelMember(ctx, channel, user)
	if err != nil {
		logger.Debug("ischannelmember failed", zap.String("ch", channel), zap.String("u", user), zap.Error(err))
		member = false
	}
	writeJSON(w, http.StatusOK, memberResponse{IsMember: member})
}

// handleUsernameExists — /doesusernameexists?u=<username>. Любая ошибка — false.
func (s *Server) handleUsernameExists(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("u"))
	if username == "" {
		writeJSON(w, http.StatusOK, existsResponse{})
		return
	}

	exists, err := s.lookup.UsernameExists(r.Context(), username)
	if err != nil {
		logger.Debug("doesusernameexists failed", zap.String("u", username), zap.Error(err))
		exists = false
	}
	writeJSON(w, http.StatusOK, existsResponse{Exists: exists})
}
