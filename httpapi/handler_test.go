package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"projectmatch/application"
	"projectmatch/auth"
	"projectmatch/directory"
	"projectmatch/proposal"
)

var (
	propID = "3f2a8c1e-9b47-4d36-8a15-6f0d2c4b7e91"
	appID  = "a1b2c3d4-e5f6-47a8-9b0c-d1e2f3a4b5c6"
)

type fakeAuth struct {
	registered  *auth.User
	registerErr error
	loginRes    auth.LoginResult
	loginErr    error
	actors      map[string]Actor
}

func (f *fakeAuth) Register(_ context.Context, req auth.RegisterRequest) (*auth.User, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return f.registered, nil
}

func (f *fakeAuth) Login(_ context.Context, req auth.LoginRequest) (auth.LoginResult, error) {
	return f.loginRes, f.loginErr
}

func (f *fakeAuth) VerifyToken(token string) (string, auth.Role, error) {
	actor, ok := f.actors[token]
	if !ok {
		return "", "", fmt.Errorf("auth: invalid token")
	}
	return actor.ID, actor.Role, nil
}

type fakeProposals struct {
	created    proposal.Detail
	createErr  error
	lastCreate proposal.CreateParams
	reviewRes  proposal.ReviewResult
	reviewErr  error
	lastReview proposal.ReviewParams
}

func (f *fakeProposals) Create(_ context.Context, params proposal.CreateParams) (proposal.Detail, error) {
	f.lastCreate = params
	return f.created, f.createErr
}

func (f *fakeProposals) Review(_ context.Context, params proposal.ReviewParams) (proposal.ReviewResult, error) {
	f.lastReview = params
	return f.reviewRes, f.reviewErr
}

type fakeProposalRead struct {
	detail     proposal.Detail
	getErr     error
	byStatus   []proposal.Proposal
	lastStatus proposal.Status
}

func (f *fakeProposalRead) Get(_ context.Context, id string) (proposal.Detail, error) {
	return f.detail, f.getErr
}

func (f *fakeProposalRead) ListByStatus(_ context.Context, status proposal.Status) ([]proposal.Proposal, error) {
	f.lastStatus = status
	return f.byStatus, nil
}

func (f *fakeProposalRead) ListByOwner(_ context.Context, ownerID string) ([]proposal.Proposal, error) {
	return f.byStatus, nil
}

func (f *fakeProposalRead) ListForReviewer(_ context.Context, reviewerID string) ([]proposal.Proposal, error) {
	return f.byStatus, nil
}

type fakeApplications struct {
	app        application.Application
	applyErr   error
	selectErr  error
	rejectErr  error
	lastCall   string
	lastActor  string
	lastTarget string
}

func (f *fakeApplications) Apply(_ context.Context, studentID, proposalID string) (application.Application, error) {
	f.lastCall, f.lastActor, f.lastTarget = "apply", studentID, proposalID
	return f.app, f.applyErr
}

func (f *fakeApplications) Select(_ context.Context, facultyID, applicationID string) (application.Application, error) {
	f.lastCall, f.lastActor, f.lastTarget = "select", facultyID, applicationID
	return f.app, f.selectErr
}

func (f *fakeApplications) Reject(_ context.Context, facultyID, applicationID string) (application.Application, error) {
	f.lastCall, f.lastActor, f.lastTarget = "reject", facultyID, applicationID
	return f.app, f.rejectErr
}

type fakeAppRead struct {
	records []application.Record
}

func (f *fakeAppRead) ListByStudent(_ context.Context, studentID string) ([]application.Record, error) {
	return f.records, nil
}

func (f *fakeAppRead) ListByProposal(_ context.Context, proposalID string) ([]application.Record, error) {
	return f.records, nil
}

func (f *fakeAppRead) ListForOwner(_ context.Context, ownerID string) ([]application.Record, error) {
	return f.records, nil
}

type fakeDirectory struct {
	groups  []directory.AreaGroup
	members []directory.Member
}

func (f *fakeDirectory) List(_ context.Context) ([]directory.AreaGroup, error) {
	return f.groups, nil
}

func (f *fakeDirectory) ListArea(_ context.Context, area string) ([]directory.Member, error) {
	return f.members, nil
}

type fixture struct {
	handler      http.Handler
	auth         *fakeAuth
	proposals    *fakeProposals
	proposalRead *fakeProposalRead
	applications *fakeApplications
}

func newFixture() *fixture {
	fa := &fakeAuth{actors: map[string]Actor{
		"student-token": {ID: "stu-1", Role: auth.RoleStudent},
		"faculty-token": {ID: "fac-1", Role: auth.RoleFaculty},
	}}
	fp := &fakeProposals{}
	fpr := &fakeProposalRead{}
	fapp := &fakeApplications{}

	h := NewHandler(Services{
		Auth:         fa,
		Proposals:    fp,
		ProposalRead: fpr,
		Applications: fapp,
		AppRead:      &fakeAppRead{},
		Directory:    &fakeDirectory{},
	})
	return &fixture{handler: h, auth: fa, proposals: fp, proposalRead: fpr, applications: fapp}
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestRegister(t *testing.T) {
	f := newFixture()
	f.auth.registered = &auth.User{ID: "u1", Email: "ada@uni.edu", FullName: "Ada", Role: auth.RoleStudent}

	rec := f.do(t, http.MethodPost, "/auth/register", "",
		`{"email":"ada@uni.edu","full_name":"Ada","password":"longenough"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var got userResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, "u1", got.ID)
	require.Equal(t, "student", got.Role)
}

func TestRegisterWeakPassword(t *testing.T) {
	f := newFixture()
	f.auth.registerErr = auth.ErrWeakPassword

	rec := f.do(t, http.MethodPost, "/auth/register", "",
		`{"email":"ada@uni.edu","full_name":"Ada","password":"short"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture()
	f.auth.loginErr = auth.ErrInvalidCredentials

	rec := f.do(t, http.MethodPost, "/auth/login", "",
		`{"email":"ada@uni.edu","password":"wrong"}`)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/proposals", "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, "/proposals", "bogus", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoleGate(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/proposals", "student-token",
		`{"title":"Quantum Sims","summary":"s","seat_capacity":2}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, "/proposals/"+propID+"/applications", "faculty-token", "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateProposal(t *testing.T) {
	f := newFixture()
	f.proposals.created = proposal.Detail{Proposal: proposal.Proposal{ID: "p1", Status: proposal.StatusPending}}

	rec := f.do(t, http.MethodPost, "/proposals", "faculty-token",
		`{"title":"Quantum Sims","summary":"noise models","seat_capacity":2}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "fac-1", f.proposals.lastCreate.OwnerID)
	require.Equal(t, "Quantum Sims", f.proposals.lastCreate.Title)
	require.Equal(t, 2, f.proposals.lastCreate.SeatCapacity)
}

func TestCreateProposalUnknownField(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/proposals", "faculty-token",
		`{"title":"x","seats":9}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListProposalsDefaultsToApproved(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/proposals", "student-token", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, proposal.StatusApproved, f.proposalRead.lastStatus)
}

func TestListProposalsBadStatus(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/proposals?status=archived", "student-token", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitReview(t *testing.T) {
	f := newFixture()
	f.proposals.reviewRes = proposal.ReviewResult{Proposal: proposal.Proposal{ID: "p1"}}

	rec := f.do(t, http.MethodPost, "/proposals/"+propID+"/reviews", "faculty-token",
		`{"decision":"reject","feedback":"method section is thin"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, propID, f.proposals.lastReview.ProposalID)
	require.Equal(t, "fac-1", f.proposals.lastReview.ReviewerID)
	require.Equal(t, proposal.DecisionReject, f.proposals.lastReview.Decision)
}

func TestSubmitReviewNotAssigned(t *testing.T) {
	f := newFixture()
	f.proposals.reviewErr = proposal.ErrNotAssigned

	rec := f.do(t, http.MethodPost, "/proposals/"+propID+"/reviews", "faculty-token",
		`{"decision":"approve"}`)

	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApply(t *testing.T) {
	f := newFixture()
	f.applications.app = application.Application{ID: "a1", Status: application.StatusPending}

	rec := f.do(t, http.MethodPost, "/proposals/"+propID+"/applications", "student-token", "")

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "apply", f.applications.lastCall)
	require.Equal(t, "stu-1", f.applications.lastActor)
	require.Equal(t, propID, f.applications.lastTarget)
}

func TestApplyLimitExceeded(t *testing.T) {
	f := newFixture()
	f.applications.applyErr = application.ErrLimitExceeded

	rec := f.do(t, http.MethodPost, "/proposals/"+propID+"/applications", "student-token", "")
	require.Equal(t, http.StatusConflict, rec.Code)

	f.applications.applyErr = application.ErrNotApplicable
	rec = f.do(t, http.MethodPost, "/proposals/"+propID+"/applications", "student-token", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSelectConflicts(t *testing.T) {
	f := newFixture()

	for _, tc := range []struct {
		err  error
		code int
	}{
		{application.ErrAlreadySelected, http.StatusConflict},
		{application.ErrNotPending, http.StatusConflict},
		{application.ErrNotAuthorized, http.StatusForbidden},
		{application.ErrNotFound, http.StatusNotFound},
	} {
		f.applications.selectErr = tc.err
		rec := f.do(t, http.MethodPost, "/applications/"+appID+"/select", "faculty-token", "")
		require.Equal(t, tc.code, rec.Code, "error %v", tc.err)
	}
}

func TestRejectRoutes(t *testing.T) {
	f := newFixture()
	f.applications.app = application.Application{ID: "a1", Status: application.StatusRejected}

	rec := f.do(t, http.MethodPost, "/applications/"+appID+"/reject", "faculty-token", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "reject", f.applications.lastCall)
	require.Equal(t, appID, f.applications.lastTarget)
}

func TestMalformedIDIsNotFound(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/proposals/not-a-uuid", "student-token", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/applications/42/select", "faculty-token", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnmappedErrorIs500(t *testing.T) {
	f := newFixture()
	f.proposalRead.getErr = errors.New("boom")

	rec := f.do(t, http.MethodGet, "/proposals/"+propID, "student-token", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
}
