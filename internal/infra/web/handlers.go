package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"course-tokens/internal/domain"
	"course-tokens/internal/domain/model"
	rds "course-tokens/internal/infra/redis"
	"course-tokens/internal/usecase"

	"github.com/go-chi/chi/v5"
)

type tokenCreateRequest struct {
	CourseID     int64           `json:"course_id"`
	OwnerEmail   string          `json:"owner_email"`
	FirstName    string          `json:"first_name"`
	LastName     string          `json:"last_name"`
	Quantity     int             `json:"quantity"`
	GroupAccount string          `json:"group_account,omitempty"`
	Extra        json.RawMessage `json:"extra,omitempty"`
	CreatedBy    string          `json:"created_by,omitempty"`
}

type tokenView struct {
	ID           string            `json:"id"`
	Code         string            `json:"code"`
	CourseID     int64             `json:"course_id"`
	OwnerUserID  string            `json:"owner_user_id"`
	CreatedAt    time.Time         `json:"created_at"`
	RedeemedBy   string            `json:"redeemed_by,omitempty"`
	RedeemedAt   *time.Time        `json:"redeemed_at,omitempty"`
	VoidedAt     *time.Time        `json:"voided_at,omitempty"`
	VoidNotes    string            `json:"void_notes,omitempty"`
	GroupAccount string            `json:"group_account,omitempty"`
	Status       model.TokenStatus `json:"status,omitempty"`
}

func viewToken(t *model.CourseToken, status model.TokenStatus) tokenView {
	v := tokenView{
		ID:           t.ID,
		Code:         t.Code,
		CourseID:     t.CourseID,
		OwnerUserID:  t.OwnerUserID,
		CreatedAt:    t.CreatedAt,
		GroupAccount: t.GroupAccount,
		Status:       status,
	}
	if t.IsRedeemed() {
		v.RedeemedBy = t.Redemption.RedeemedBy
		at := t.Redemption.RedeemedAt
		v.RedeemedAt = &at
	}
	if t.IsVoided() {
		at := t.Void.VoidedAt
		v.VoidedAt = &at
		v.VoidNotes = t.Void.Notes
	}
	return v
}

type tokenCreateResponse struct {
	Tokens    []tokenView `json:"tokens"`
	Created   int         `json:"created"`
	Requested int         `json:"requested"`
	EmailSent bool        `json:"email_sent"`
	Warning   string      `json:"warning,omitempty"`
}

// createTokens issues a batch of tokens. Partial batches and undelivered
// notifications are reported as warnings on a 201: the created tokens stand.
func (s *Server) createTokens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req tokenCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	createdBy := req.CreatedBy
	if createdBy == "" {
		createdBy = "api"
	}

	res, err := s.tokenUC.CreateBatch(ctx, usecase.CreateBatchRequest{
		CourseID:     req.CourseID,
		OwnerEmail:   req.OwnerEmail,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Quantity:     req.Quantity,
		GroupAccount: req.GroupAccount,
		Extra:        req.Extra,
		CreatedBy:    createdBy,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := tokenCreateResponse{
		Created:   res.Created,
		Requested: res.Requested,
		EmailSent: res.EmailSent,
	}
	for _, t := range res.Tokens {
		resp.Tokens = append(resp.Tokens, viewToken(t, model.StatusAvailable))
	}
	switch {
	case res.Partial():
		resp.Warning = "batch fell short; tokens listed were created"
	case !res.EmailSent:
		resp.Warning = "tokens created but the notification email was not sent"
	}

	writeJSON(w, http.StatusCreated, resp)
}

// listTokens returns an owner's active tokens, newest first, each with its
// projected status. Voided tokens are excluded.
func (s *Server) listTokens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owner := r.URL.Query().Get("owner")
	if owner == "" {
		http.Error(w, "owner query parameter is required", http.StatusBadRequest)
		return
	}

	var (
		tokens []*model.CourseToken
		err    error
	)
	if courseStr := r.URL.Query().Get("course"); courseStr != "" {
		courseID, convErr := strconv.ParseInt(courseStr, 10, 64)
		if convErr != nil {
			http.Error(w, "course must be numeric", http.StatusBadRequest)
			return
		}
		tokens, err = s.tokenUC.ListByCourseAndOwner(ctx, courseID, owner)
	} else {
		tokens, err = s.tokenUC.ListByOwner(ctx, owner)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	views := make([]tokenView, 0, len(tokens))
	for _, t := range tokens {
		status, err := s.statusUC.ProjectToken(ctx, t)
		if err != nil {
			// Listings never include voided tokens, so any error here is a
			// downstream read failure.
			writeError(w, err)
			return
		}
		views = append(views, viewToken(t, status))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tokens": views})
}

type redeemRequest struct {
	Code     string `json:"code"`
	Redeemee *struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"redeemee,omitempty"`
}

type redeemResponse struct {
	Outcome  string `json:"outcome"`
	CourseID int64  `json:"course_id"`
	Message  string `json:"message,omitempty"`
}

func (s *Server) redeemToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorID(ctx)

	if s.limiter != nil && s.rateLimit > 0 {
		ok, err := s.limiter.Allow(ctx, rds.ActorActionKey(actor, "redeem"), s.rateLimit, time.Minute)
		if err != nil {
			s.log.Warn().Err(err).Msg("rate limiter unavailable, letting the request through")
		} else if !ok {
			http.Error(w, "Too many redemption attempts", http.StatusTooManyRequests)
			return
		}
	}

	var req redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ucReq := usecase.RedeemRequest{Code: req.Code, ActorID: actor}
	if req.Redeemee != nil {
		ucReq.Redeemee = &usecase.Redeemee{
			Email:     req.Redeemee.Email,
			FirstName: req.Redeemee.FirstName,
			LastName:  req.Redeemee.LastName,
		}
	}

	res, err := s.redeemUC.Redeem(ctx, ucReq)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redeemResponse{
		Outcome:  string(res.Outcome),
		CourseID: res.CourseID,
		Message:  res.Message,
	})
}

func (s *Server) tokenStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tokenID := chi.URLParam(r, "id")

	status, err := s.statusUC.Project(ctx, tokenID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token_id": tokenID,
		"status":   string(status),
	})
}

type voidRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) voidToken(w http.ResponseWriter, r *http.Request) {
	var req voidRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	id := chi.URLParam(r, "id")
	if err := s.tokenUC.Void(r.Context(), id, req.Notes); err != nil {
		writeError(w, err)
		return
	}
	s.statusUC.Invalidate(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unvoidToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.tokenUC.Unvoid(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.statusUC.Invalidate(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unenrolToken(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.tokenUC.Unenrol(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.statusUC.Invalidate(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

type resendWelcomeRequest struct {
	Email string `json:"email"`
}

// resendWelcome rotates the account's credential and re-sends the welcome
// email with the new one.
func (s *Server) resendWelcome(w http.ResponseWriter, r *http.Request) {
	var req resendWelcomeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}
	if err := s.tokenUC.ResendWelcome(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain sentinels onto HTTP statuses. Unknown errors stay
// opaque to the client.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrCourseNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrTokenAlreadyUsed),
		errors.Is(err, domain.ErrTokenVoided),
		errors.Is(err, domain.ErrTokenNotVoided),
		errors.Is(err, domain.ErrAlreadyEnrolled),
		errors.Is(err, domain.ErrEnrolmentNotFound):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrMailNotSent):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
