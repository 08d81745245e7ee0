package runner

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeUser map[string]any

// fakeAPI is a well-behaved user API. Individual fields switch on the
// misbehaviours the harness is meant to catch.
type fakeAPI struct {
	mu     sync.Mutex
	users  []fakeUser
	nextID int

	slowDelay      time.Duration
	createStatus   int  // overrides 201 when set
	createOmitsID  bool // 201 without an id
	ignoreDelete   bool // 200 but the user survives
	acceptNegPage  bool
	wrapSingleUser bool // respond {"data": user} for single resources
	htmlHealth     bool // 200 with an html page on /health
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		users: []fakeUser{
			{"id": 1, "name": "João Silva", "email": "joao@email.com", "age": 28, "status": "active",
				"createdAt": "2024-01-15T10:30:00Z", "updatedAt": "2024-01-15T10:30:00Z"},
			{"id": 2, "name": "Maria Santos", "email": "maria@email.com", "age": 32, "status": "active",
				"createdAt": "2024-01-16T14:20:00Z", "updatedAt": "2024-01-16T14:20:00Z"},
		},
		nextID:         3,
		wrapSingleUser: true,
	}
}

func (f *fakeAPI) start(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		if f.htmlHealth {
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body>Under maintenance</body></html>"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "OK"})
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "QA Evaluation API", "version": "1.0.0"})
	})
	mux.HandleFunc("GET /users", f.listUsers)
	mux.HandleFunc("POST /users", f.createUser)
	mux.HandleFunc("GET /users/{id}", f.getUser)
	mux.HandleFunc("PUT /users/{id}", f.updateUser)
	mux.HandleFunc("DELETE /users/{id}", f.deleteUser)
	mux.HandleFunc("GET /slow-endpoint", func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(f.slowDelay)
		writeJSON(w, http.StatusOK, map[string]any{"message": "Slow endpoint completed"})
	})
	mux.HandleFunc("GET /memory-leak", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "Memory leak test completed", "size": 100000})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeAPI) listUsers(w http.ResponseWriter, r *http.Request) {
	page, limit := 1, 10
	if v := r.URL.Query().Get("page"); v != "" {
		page, _ = strconv.Atoi(v)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	if (page < 1 && !f.acceptNegPage) || limit < 1 || limit > 100 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid pagination"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"data":       f.users,
		"pagination": map[string]any{"page": page, "limit": limit, "total": len(f.users)},
	})
}

func (f *fakeAPI) createUser(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name   string   `json:"name"`
		Email  string   `json:"email"`
		Age    *float64 `json:"age"`
		Status string   `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid body"})
		return
	}
	switch {
	case in.Name == "":
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Name is required"})
		return
	case !strings.Contains(in.Email, "@") || !strings.Contains(in.Email, "."):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid email format"})
		return
	case in.Age != nil && *in.Age < 0:
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Age must be positive"})
		return
	}
	if f.createStatus != 0 {
		writeJSON(w, f.createStatus, map[string]any{"error": "Internal server error"})
		return
	}

	f.mu.Lock()
	u := fakeUser{
		"id": f.nextID, "name": in.Name, "email": in.Email, "status": in.Status,
		"createdAt": time.Now().UTC().Format(time.RFC3339), "updatedAt": time.Now().UTC().Format(time.RFC3339),
	}
	if in.Age != nil {
		u["age"] = int(*in.Age)
	}
	f.nextID++
	f.users = append(f.users, u)
	f.mu.Unlock()

	if f.createOmitsID {
		writeJSON(w, http.StatusCreated, map[string]any{"message": "User created successfully"})
		return
	}
	writeJSON(w, http.StatusCreated, f.single(u))
}

func (f *fakeAPI) getUser(w http.ResponseWriter, r *http.Request) {
	u, _, ok := f.find(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "User not found"})
		return
	}
	writeJSON(w, http.StatusOK, f.single(u))
}

func (f *fakeAPI) updateUser(w http.ResponseWriter, r *http.Request) {
	u, _, ok := f.find(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "User not found"})
		return
	}
	var in map[string]any
	_ = json.NewDecoder(r.Body).Decode(&in)

	f.mu.Lock()
	for k, v := range in {
		u[k] = v
	}
	u["updatedAt"] = time.Now().UTC().Format(time.RFC3339)
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, f.single(u))
}

func (f *fakeAPI) deleteUser(w http.ResponseWriter, r *http.Request) {
	u, idx, ok := f.find(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "User not found"})
		return
	}
	if !f.ignoreDelete {
		f.mu.Lock()
		f.users = append(f.users[:idx], f.users[idx+1:]...)
		f.mu.Unlock()
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "User deleted successfully", "data": u})
}

func (f *fakeAPI) find(raw string) (fakeUser, int, bool) {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return nil, -1, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, u := range f.users {
		if u["id"] == id {
			return u, i, true
		}
	}
	return nil, -1, false
}

func (f *fakeAPI) single(u fakeUser) any {
	if f.wrapSingleUser {
		return map[string]any{"data": u}
	}
	return u
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
