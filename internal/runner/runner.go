package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"userapi_tester/internal/metrics"
	"userapi_tester/internal/model"
	"userapi_tester/internal/probe"
	"userapi_tester/internal/recorder"
)

const (
	DefaultSlowThreshold = 5 * time.Second

	nonexistentUserPath = "/users/99999"
	connectionActual    = "connection error"
)

var requiredUserFields = []string{"id", "name", "email", "age", "status", "createdAt", "updatedAt"}

// Prober is satisfied by *probe.Client.
type Prober interface {
	Do(ctx context.Context, req model.ProbeRequest) (model.ProbeResult, error)
}

type Runner struct {
	probe         Prober
	rec           *recorder.Recorder
	log           *zap.Logger
	metrics       *metrics.Run
	out           io.Writer
	slowThreshold time.Duration
}

type Option func(*Runner)

func WithSlowThreshold(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.slowThreshold = d
		}
	}
}

func WithMetrics(m *metrics.Run) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

func New(p Prober, rec *recorder.Recorder, log *zap.Logger, opts ...Option) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Runner{
		probe:         p,
		rec:           rec,
		log:           log,
		out:           os.Stdout,
		slowThreshold: DefaultSlowThreshold,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the whole suite in order. It never stops early: expectation
// mismatches and connection failures are recorded as BUG and the next check
// runs. The checks that need a created user are skipped when creation did not
// return an id.
func (r *Runner) Run(ctx context.Context) model.ReportBundle {
	fmt.Fprintln(r.out, "🚀 Starting user API tests...")
	fmt.Fprintln(r.out, strings.Repeat("=", 50))

	r.CheckHealth(ctx)
	r.CheckRoot(ctx)
	r.CheckListUsers(ctx)
	r.CheckDuplicateEmails(ctx)
	r.CheckAgeTypes(ctx)

	userID, created := r.CheckCreateValid(ctx)
	r.CheckCreateInvalidEmail(ctx)
	r.CheckCreateEmptyName(ctx)
	r.CheckCreateNegativeAge(ctx)

	if created {
		r.CheckGetByID(ctx, userID)
	} else {
		r.skip("GET User by ID")
	}
	r.CheckGetNonexistent(ctx)

	if created {
		r.CheckUpdate(ctx, userID)
	} else {
		r.skip("PUT User")
	}

	r.CheckPaginationValid(ctx)
	r.CheckPaginationNegativePage(ctx)
	r.CheckPaginationExcessiveLimit(ctx)
	r.CheckSlowEndpoint(ctx)
	r.CheckMemoryLeak(ctx)

	if created {
		r.CheckDelete(ctx, userID)
	} else {
		r.skip("DELETE User")
	}

	fmt.Fprintln(r.out, strings.Repeat("=", 50))
	return r.rec.Bundle()
}

func (r *Runner) skip(check string) {
	r.metrics.ObserveSkipped()
	r.log.Info("check skipped: no user id from creation", zap.String("check", check))
}

func (r *Runner) CheckHealth(ctx context.Context) {
	r.expectStatus(ctx, "Health Check", get("/health"), http.StatusOK,
		"Health check should return 200 OK")
}

func (r *Runner) CheckRoot(ctx context.Context) {
	r.expectStatus(ctx, "Root Endpoint", get("/"), http.StatusOK,
		"Root endpoint should return 200 OK")
}

// CheckListUsers validates the list envelope and the fields of its first
// element.
func (r *Runner) CheckListUsers(ctx context.Context) {
	res, err := r.probe.Do(ctx, get("/users"))
	if err != nil {
		r.connectionBug("GET Users", statusLabel(http.StatusOK), err)
		return
	}
	if res.StatusCode != http.StatusOK {
		r.rec.Bug("GET Users - Status", statusLabel(http.StatusOK), statusLabel(res.StatusCode),
			"Listing users should return 200 OK")
		return
	}

	users, ok := usersFrom(res.Body)
	if !ok {
		r.rec.Bug("GET Users - Structure", "Field 'data' with a list", describeBody(res.Body),
			"Response must have a 'data' field with the list of users")
		return
	}
	r.rec.Pass("GET Users - Structure", "List of users", "List of users returned")

	if len(users) == 0 {
		return
	}
	missing := model.MissingFields(users[0], requiredUserFields...)
	if len(missing) > 0 {
		r.rec.Bug("GET Users - Required Fields", "All fields present",
			fmt.Sprintf("Missing fields: %s", strings.Join(missing, ", ")),
			"Users must have all required fields")
		return
	}
	r.rec.Pass("GET Users - Required Fields", "All fields present", "All fields present")
}

func (r *Runner) CheckDuplicateEmails(ctx context.Context) {
	const name, expected = "Duplicate Emails", "Unique emails"
	users, ok := r.fetchUsers(ctx, name, expected)
	if !ok {
		return
	}
	dups := FindDuplicateEmails(users)
	if len(dups) > 0 {
		r.rec.Bug(name, expected, fmt.Sprintf("Duplicates: %s", strings.Join(dups, ", ")),
			"There must be no duplicated emails")
		return
	}
	r.rec.Pass(name, expected, "All unique")
}

func (r *Runner) CheckAgeTypes(ctx context.Context) {
	const name, expected = "Age Types", "All ages are integers"
	users, ok := r.fetchUsers(ctx, name, expected)
	if !ok {
		return
	}
	invalid := FindInvalidAges(users)
	if len(invalid) > 0 {
		r.rec.Bug(name, expected, fmt.Sprintf("Invalid: %s", strings.Join(invalid, "; ")),
			"Field age must always be an integer")
		return
	}
	r.rec.Pass(name, expected, "All valid")
}

// CheckCreateValid returns the id of the created user. The id is only
// reported when the API returned one with the 201.
func (r *Runner) CheckCreateValid(ctx context.Context) (any, bool) {
	payload := map[string]any{
		"name":   "Teste Usuário",
		"email":  "teste@email.com",
		"age":    25,
		"status": "active",
	}
	res, ok := r.expectStatus(ctx, "POST User - Status", post("/users", payload), http.StatusCreated,
		"Creating a valid user should return 201 Created")
	if !ok {
		return nil, false
	}

	id, found := model.Lookup(res.Body, "id")
	if !found || id == nil {
		r.rec.Bug("POST User - ID", "ID returned", "ID not returned", "Created user must return an ID")
		return nil, false
	}
	r.rec.Pass("POST User - ID", "ID returned", fmt.Sprintf("ID: %s", model.PathSegment(id)))
	return id, true
}

func (r *Runner) CheckCreateInvalidEmail(ctx context.Context) {
	payload := map[string]any{
		"name":   "Teste Usuário",
		"email":  "email-invalido",
		"age":    25,
		"status": "active",
	}
	r.expectStatus(ctx, "POST User - Invalid Email", post("/users", payload), http.StatusBadRequest,
		"Invalid email should return 400 Bad Request")
}

func (r *Runner) CheckCreateEmptyName(ctx context.Context) {
	payload := map[string]any{
		"name":   "",
		"email":  "teste@email.com",
		"age":    25,
		"status": "active",
	}
	r.expectStatus(ctx, "POST User - Empty Name", post("/users", payload), http.StatusBadRequest,
		"Empty name should return 400 Bad Request")
}

func (r *Runner) CheckCreateNegativeAge(ctx context.Context) {
	payload := map[string]any{
		"name":   "Teste Usuário",
		"email":  "teste@email.com",
		"age":    -5,
		"status": "active",
	}
	r.expectStatus(ctx, "POST User - Negative Age", post("/users", payload), http.StatusBadRequest,
		"Negative age should return 400 Bad Request")
}

func (r *Runner) CheckGetByID(ctx context.Context, id any) {
	res, ok := r.expectStatus(ctx, "GET User by ID - Status", get(userPath(id)), http.StatusOK,
		"Fetching an existing user should return 200 OK")
	if !ok {
		return
	}
	got, found := model.Lookup(res.Body, "id")
	if !found || !model.SameValue(got, id) {
		actual := "ID not returned"
		if found {
			actual = fmt.Sprintf("ID: %s", model.Format(got))
		}
		r.rec.Bug("GET User by ID - Data", fmt.Sprintf("ID: %s", model.PathSegment(id)), actual,
			"Returned user does not match the requested ID")
		return
	}
	r.rec.Pass("GET User by ID - Data", fmt.Sprintf("ID: %s", model.PathSegment(id)),
		fmt.Sprintf("ID: %s", model.Format(got)))
}

func (r *Runner) CheckGetNonexistent(ctx context.Context) {
	r.expectStatus(ctx, "GET User - Nonexistent ID", get(nonexistentUserPath), http.StatusNotFound,
		"Nonexistent ID should return 404 Not Found")
}

// CheckUpdate only checks that updatedAt is present, not that it moved.
func (r *Runner) CheckUpdate(ctx context.Context, id any) {
	payload := map[string]any{
		"name":   "Usuário Atualizado",
		"email":  "atualizado@email.com",
		"age":    30,
		"status": "inactive",
	}
	res, ok := r.expectStatus(ctx, "PUT User - Status", put(userPath(id), payload), http.StatusOK,
		"Updating a user should return 200 OK")
	if !ok {
		return
	}
	if _, found := model.Lookup(res.Body, "updatedAt"); !found {
		r.rec.Bug("PUT User - updatedAt", "Field updatedAt present", "Field updatedAt missing",
			"Field updatedAt must be returned after an update")
		return
	}
	r.rec.Pass("PUT User - updatedAt", "Field updatedAt present", "Field updatedAt present")
}

func (r *Runner) CheckPaginationValid(ctx context.Context) {
	req := get("/users")
	req.Query = map[string]string{"page": "1", "limit": "5"}
	r.expectStatus(ctx, "Pagination - Valid Page", req, http.StatusOK,
		"A valid page should return 200 OK")
}

func (r *Runner) CheckPaginationNegativePage(ctx context.Context) {
	req := get("/users")
	req.Query = map[string]string{"page": "-1"}
	r.expectStatus(ctx, "Pagination - Negative Page", req, http.StatusBadRequest,
		"Negative page should return 400 Bad Request")
}

func (r *Runner) CheckPaginationExcessiveLimit(ctx context.Context) {
	req := get("/users")
	req.Query = map[string]string{"limit": "10000"}
	r.expectStatus(ctx, "Pagination - Excessive Limit", req, http.StatusBadRequest,
		"Excessive limit should return 400 Bad Request")
}

// CheckSlowEndpoint passes when the endpoint IS slow. /slow-endpoint is a
// diagnostic route that sleeps on purpose, so a fast answer means the delay
// is broken.
func (r *Runner) CheckSlowEndpoint(ctx context.Context) {
	const name = "Performance - Slow Endpoint"
	expected := fmt.Sprintf("Slow response (> %s)", r.slowThreshold)

	start := time.Now()
	_, err := r.probe.Do(ctx, get("/slow-endpoint"))
	elapsed := time.Since(start)
	if err != nil {
		r.connectionBug(name, expected, err)
		return
	}

	actual := fmt.Sprintf("%.2fs", elapsed.Seconds())
	if elapsed > r.slowThreshold {
		r.rec.Pass(name, expected, actual)
		return
	}
	r.rec.Bug(name, expected, actual, fmt.Sprintf("Endpoint should be slow (> %s)", r.slowThreshold))
}

func (r *Runner) CheckMemoryLeak(ctx context.Context) {
	r.expectStatus(ctx, "Performance - Memory Leak", get("/memory-leak"), http.StatusOK,
		"Memory leak endpoint should return 200 OK")
}

// CheckDelete confirms a hard delete by reading the user back.
func (r *Runner) CheckDelete(ctx context.Context, id any) {
	_, ok := r.expectStatus(ctx, "DELETE User - Status", del(userPath(id)), http.StatusOK,
		"Deleting a user should return 200 OK")
	if !ok {
		return
	}

	const name, expected = "DELETE User - Verification", "User deleted"
	res, err := r.probe.Do(ctx, get(userPath(id)))
	if err != nil {
		r.connectionBug(name, expected, err)
		return
	}
	if res.StatusCode != http.StatusNotFound {
		r.rec.Bug(name, expected, fmt.Sprintf("User still exists (%s)", statusLabel(res.StatusCode)),
			"User should be permanently deleted")
		return
	}
	r.rec.Pass(name, expected, "User not found")
}

// expectStatus records exactly one record for the status expectation and
// reports whether it matched.
func (r *Runner) expectStatus(ctx context.Context, name string, req model.ProbeRequest, want int, description string) (model.ProbeResult, bool) {
	expected := statusLabel(want)
	res, err := r.probe.Do(ctx, req)
	if err != nil {
		r.connectionBug(name, expected, err)
		return res, false
	}
	if res.StatusCode != want {
		r.rec.Bug(name, expected, statusLabel(res.StatusCode), description)
		return res, false
	}
	r.rec.Pass(name, expected, statusLabel(res.StatusCode))
	return res, true
}

// fetchUsers loads the user list for checks that inspect it, recording a BUG
// under name when the list cannot be obtained.
func (r *Runner) fetchUsers(ctx context.Context, name, expected string) ([]any, bool) {
	res, err := r.probe.Do(ctx, get("/users"))
	if err != nil {
		r.connectionBug(name, expected, err)
		return nil, false
	}
	if res.StatusCode != http.StatusOK {
		r.rec.Bug(name, expected, statusLabel(res.StatusCode), "Listing users should return 200 OK")
		return nil, false
	}
	users, ok := usersFrom(res.Body)
	if !ok {
		r.rec.Bug(name, expected, describeBody(res.Body), "Response must have a 'data' field with the list of users")
		return nil, false
	}
	return users, true
}

func (r *Runner) connectionBug(name, expected string, err error) {
	desc := "Connection failure"
	if !errors.Is(err, probe.ErrConnection) {
		desc = "Request could not be sent"
	}
	r.log.Warn("probe error", zap.String("check", name), zap.Error(err))
	r.rec.Bug(name, expected, connectionActual, fmt.Sprintf("%s: %v", desc, err))
}

func usersFrom(body any) ([]any, bool) {
	data, ok := model.Field(body, "data")
	if !ok {
		return nil, false
	}
	return model.AsArray(data)
}

func describeBody(body any) string {
	if body == nil {
		return "Empty or non-JSON body"
	}
	return fmt.Sprintf("Unexpected structure (%s)", model.KindOf(body))
}

func statusLabel(code int) string {
	if text := http.StatusText(code); text != "" {
		return fmt.Sprintf("%d %s", code, text)
	}
	return fmt.Sprint(code)
}

func userPath(id any) string {
	return "/users/" + url.PathEscape(model.PathSegment(id))
}

func get(path string) model.ProbeRequest {
	return model.ProbeRequest{Method: http.MethodGet, Path: path}
}

func post(path string, body any) model.ProbeRequest {
	return model.ProbeRequest{Method: http.MethodPost, Path: path, Body: body}
}

func put(path string, body any) model.ProbeRequest {
	return model.ProbeRequest{Method: http.MethodPut, Path: path, Body: body}
}

func del(path string) model.ProbeRequest {
	return model.ProbeRequest{Method: http.MethodDelete, Path: path}
}
