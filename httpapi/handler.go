package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"projectmatch/application"
	"projectmatch/auth"
	"projectmatch/directory"
	"projectmatch/metrics"
	"projectmatch/proposal"
)

// AuthService is the account surface the edge consumes.
type AuthService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	VerifyToken(token string) (string, auth.Role, error)
}

// ProposalService runs proposal submission and review recording.
type ProposalService interface {
	Create(ctx context.Context, params proposal.CreateParams) (proposal.Detail, error)
	Review(ctx context.Context, params proposal.ReviewParams) (proposal.ReviewResult, error)
}

// ProposalReader exposes the proposal read accessors.
type ProposalReader interface {
	Get(ctx context.Context, proposalID string) (proposal.Detail, error)
	ListByStatus(ctx context.Context, status proposal.Status) ([]proposal.Proposal, error)
	ListByOwner(ctx context.Context, ownerID string) ([]proposal.Proposal, error)
	ListForReviewer(ctx context.Context, reviewerID string) ([]proposal.Proposal, error)
}

// ApplicationService runs the application consistency engine.
type ApplicationService interface {
	Apply(ctx context.Context, studentID, proposalID string) (application.Application, error)
	Select(ctx context.Context, facultyID, applicationID string) (application.Application, error)
	Reject(ctx context.Context, facultyID, applicationID string) (application.Application, error)
}

// ApplicationReader exposes the application read accessors.
type ApplicationReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]application.Record, error)
	ListByProposal(ctx context.Context, proposalID string) ([]application.Record, error)
	ListForOwner(ctx context.Context, ownerID string) ([]application.Record, error)
}

// DirectoryService exposes the read-only faculty directory.
type DirectoryService interface {
	List(ctx context.Context) ([]directory.AreaGroup, error)
	ListArea(ctx context.Context, area string) ([]directory.Member, error)
}

// Services bundles everything the handler serves.
type Services struct {
	Auth         AuthService
	Proposals    ProposalService
	ProposalRead ProposalReader
	Applications ApplicationService
	AppRead      ApplicationReader
	Directory    DirectoryService
}

type handler struct {
	svc Services
}

// NewHandler returns a mux exposing the platform REST API.
func NewHandler(svc Services) http.Handler {
	h := &handler{svc: svc}
	mux := http.NewServeMux()

	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, metrics.InstrumentHandler(pattern, fn))
	}

	route("POST /auth/register", h.register)
	route("POST /auth/login", h.login)

	route("GET /directory", h.directoryAll)
	route("GET /directory/{area}", h.directoryArea)

	route("POST /proposals", h.requireRole(auth.RoleFaculty, h.createProposal))
	route("GET /proposals", h.requireAuth(h.listProposals))
	route("GET /proposals/mine", h.requireRole(auth.RoleFaculty, h.listOwnProposals))
	route("GET /proposals/review-queue", h.requireRole(auth.RoleFaculty, h.reviewQueue))
	route("GET /proposals/{id}", h.requireAuth(h.getProposal))
	route("POST /proposals/{id}/reviews", h.requireRole(auth.RoleFaculty, h.submitReview))
	route("POST /proposals/{id}/applications", h.requireRole(auth.RoleStudent, h.apply))
	route("GET /proposals/{id}/applications", h.requireRole(auth.RoleFaculty, h.listProposalApplications))

	route("GET /applications/mine", h.requireRole(auth.RoleStudent, h.listOwnApplications))
	route("GET /applications/owned", h.requireRole(auth.RoleFaculty, h.listOwnedApplications))
	route("POST /applications/{id}/select", h.requireRole(auth.RoleFaculty, h.selectApplication))
	route("POST /applications/{id}/reject", h.requireRole(auth.RoleFaculty, h.rejectApplication))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", metrics.Handler())

	return mux
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := h.svc.Auth.Register(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, userView(*user))
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := h.svc.Auth.Login(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": res.Token,
		"user":  userView(res.User),
	})
}

func (h *handler) directoryAll(w http.ResponseWriter, r *http.Request) {
	groups, err := h.svc.Directory.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groups)
}

func (h *handler) directoryArea(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.Directory.ListArea(r.Context(), r.PathValue("area"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *handler) createProposal(w http.ResponseWriter, r *http.Request, actor Actor) {
	var payload struct {
		Title        string `json:"title"`
		Summary      string `json:"summary"`
		SeatCapacity int    `json:"seat_capacity"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	detail, err := h.svc.Proposals.Create(r.Context(), proposal.CreateParams{
		OwnerID:      actor.ID,
		Title:        payload.Title,
		Summary:      payload.Summary,
		SeatCapacity: payload.SeatCapacity,
	})
	if err != nil {
		metrics.ObserveOperation("proposal_create", "error")
		writeDomainError(w, err)
		return
	}
	metrics.ObserveOperation("proposal_create", "ok")
	writeJSON(w, http.StatusCreated, detail)
}

func (h *handler) listProposals(w http.ResponseWriter, r *http.Request, actor Actor) {
	status := proposal.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = proposal.StatusApproved
	}
	switch status {
	case proposal.StatusPending, proposal.StatusApproved, proposal.StatusRejected:
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown status %q", status))
		return
	}

	items, err := h.svc.ProposalRead.ListByStatus(r.Context(), status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) listOwnProposals(w http.ResponseWriter, r *http.Request, actor Actor) {
	items, err := h.svc.ProposalRead.ListByOwner(r.Context(), actor.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) reviewQueue(w http.ResponseWriter, r *http.Request, actor Actor) {
	items, err := h.svc.ProposalRead.ListForReviewer(r.Context(), actor.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) getProposal(w http.ResponseWriter, r *http.Request, actor Actor) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.svc.ProposalRead.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (h *handler) submitReview(w http.ResponseWriter, r *http.Request, actor Actor) {
	var payload struct {
		Decision string `json:"decision"`
		Feedback string `json:"feedback"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Proposals.Review(r.Context(), proposal.ReviewParams{
		ProposalID: id,
		ReviewerID: actor.ID,
		Decision:   proposal.Decision(payload.Decision),
		Feedback:   payload.Feedback,
	})
	if err != nil {
		metrics.ObserveOperation("review", "error")
		writeDomainError(w, err)
		return
	}
	metrics.ObserveOperation("review", "ok")
	writeJSON(w, http.StatusCreated, res)
}

func (h *handler) apply(w http.ResponseWriter, r *http.Request, actor Actor) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	app, err := h.svc.Applications.Apply(r.Context(), actor.ID, id)
	if err != nil {
		metrics.ObserveOperation("apply", "error")
		writeDomainError(w, err)
		return
	}
	metrics.ObserveOperation("apply", "ok")
	writeJSON(w, http.StatusCreated, app)
}

func (h *handler) listProposalApplications(w http.ResponseWriter, r *http.Request, actor Actor) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	items, err := h.svc.AppRead.ListByProposal(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) listOwnApplications(w http.ResponseWriter, r *http.Request, actor Actor) {
	items, err := h.svc.AppRead.ListByStudent(r.Context(), actor.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) listOwnedApplications(w http.ResponseWriter, r *http.Request, actor Actor) {
	items, err := h.svc.AppRead.ListForOwner(r.Context(), actor.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) selectApplication(w http.ResponseWriter, r *http.Request, actor Actor) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	app, err := h.svc.Applications.Select(r.Context(), actor.ID, id)
	if err != nil {
		metrics.ObserveOperation("select", "error")
		writeDomainError(w, err)
		return
	}
	metrics.ObserveOperation("select", "ok")
	writeJSON(w, http.StatusOK, app)
}

func (h *handler) rejectApplication(w http.ResponseWriter, r *http.Request, actor Actor) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	app, err := h.svc.Applications.Reject(r.Context(), actor.ID, id)
	if err != nil {
		metrics.ObserveOperation("reject", "error")
		writeDomainError(w, err)
		return
	}
	metrics.ObserveOperation("reject", "ok")
	writeJSON(w, http.StatusOK, app)
}

type userResponse struct {
	ID           string  `json:"id"`
	Email        string  `json:"email"`
	FullName     string  `json:"full_name"`
	Role         string  `json:"role"`
	ResearchArea *string `json:"research_area,omitempty"`
}

func userView(u auth.User) userResponse {
	return userResponse{
		ID:           u.ID,
		Email:        u.Email,
		FullName:     u.FullName,
		Role:         string(u.Role),
		ResearchArea: u.ResearchArea,
	}
}

// pathID pulls the {id} segment and rejects anything that is not a UUID so
// malformed identifiers read as not-found instead of a database cast error.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if uuid.Validate(id) != nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("no such resource %q", id))
		return "", false
	}
	return id, true
}

func decodeJSON(body io.Reader, dst any) error {
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var errMissingToken = errors.New("httpapi: missing bearer token")
