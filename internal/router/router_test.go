package router_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/medledger/registry-api/internal/handler"
	appointmentHandler "github.com/medledger/registry-api/internal/handler/appointment"
	medicalHandler "github.com/medledger/registry-api/internal/handler/medical"
	patientHandler "github.com/medledger/registry-api/internal/handler/patient"
	registryHandler "github.com/medledger/registry-api/internal/handler/registry"
	"github.com/medledger/registry-api/internal/middleware"
	"github.com/medledger/registry-api/internal/model"
	"github.com/medledger/registry-api/internal/repository/memory"
	"github.com/medledger/registry-api/internal/router"
	appointmentService "github.com/medledger/registry-api/internal/service/appointment"
	identityService "github.com/medledger/registry-api/internal/service/identity"
	medicalService "github.com/medledger/registry-api/internal/service/medical"
	patientService "github.com/medledger/registry-api/internal/service/patient"
	"github.com/medledger/registry-api/pkg/auth"
	"github.com/medledger/registry-api/pkg/logger"
)

var (
	testRouter *router.Router
	jwtSvc     *auth.JWTService
)

// TestMain builds one router for the whole package; the prometheus metrics
// registered during construction must only be registered once per process.
func TestMain(m *testing.M) {
	store := memory.NewStore("admin")
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})

	identitySvc := identityService.NewService(store, log)
	patientSvc := patientService.NewService(store, log)
	appointmentSvc := appointmentService.NewService(store, log)
	medicalSvc := medicalService.NewService(store, log)

	jwtSvc = auth.NewJWTService("test-secret", time.Hour)

	testRouter = router.NewRouter(
		middleware.NewAuthMiddleware(jwtSvc),
		registryHandler.NewHandler(identitySvc),
		patientHandler.NewHandler(patientSvc, appointmentSvc, medicalSvc),
		appointmentHandler.NewHandler(appointmentSvc),
		medicalHandler.NewHandler(medicalSvc),
		handler.NewHandler(nil),
		router.RouterConfig{
			RateLimit:     rate.Limit(1000),
			RateBurst:     1000,
			CORSConfig:    middleware.DefaultCORSConfig(),
			MetricsPrefix: "registry_http_test",
		},
	)
	testRouter.Setup()

	os.Exit(m.Run())
}

func doRequest(t *testing.T, method, path string, body interface{}, caller string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	return serveOn(t, testRouter, method, path, body, caller)
}

func serveOn(t *testing.T, r *router.Router, method, path string, body interface{}, caller string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, "/api/v1"+path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		token, err := jwtSvc.GenerateToken(model.Identity(caller))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.Engine().ServeHTTP(w, req)

	var resp map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestHealthEndpointsAreUnauthenticated(t *testing.T) {
	w, _ := doRequest(t, "GET", "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doRequest(t, "GET", "/health/ready", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	w, resp := doRequest(t, "GET", "/registry/roles/admin", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "error", resp["status"])
}

func TestFullFlow(t *testing.T) {
	// Admin registers a doctor and a lab.
	w, resp := doRequest(t, "POST", "/registry/doctors", map[string]string{"address": "dr-house"}, "admin")
	require.Equal(t, http.StatusCreated, w.Code, "body: %v", resp)

	w, _ = doRequest(t, "POST", "/registry/labs", map[string]string{"address": "quest-lab"}, "admin")
	require.Equal(t, http.StatusCreated, w.Code)

	// A non-admin cannot register doctors.
	w, _ = doRequest(t, "POST", "/registry/doctors", map[string]string{"address": "dr-evil"}, "dr-house")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Alice self-registers as a patient.
	w, resp = doRequest(t, "POST", "/patients", map[string]interface{}{
		"name":         "Alice",
		"age":          34,
		"contact_info": "alice@example.com",
	}, "alice")
	require.Equal(t, http.StatusCreated, w.Code, "body: %v", resp)

	// Registering twice conflicts.
	w, _ = doRequest(t, "POST", "/patients", map[string]interface{}{"name": "Alice", "age": 34}, "alice")
	assert.Equal(t, http.StatusConflict, w.Code)

	// Role lookups reflect the assignments.
	w, resp = doRequest(t, "GET", "/registry/roles/dr-house", nil, "alice")
	require.Equal(t, http.StatusOK, w.Code)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "doctor", data["role"])

	// Alice schedules the first appointment; it gets ID 0.
	w, resp = doRequest(t, "POST", "/appointments", map[string]interface{}{
		"doctor_address": "dr-house",
		"scheduled_time": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}, "alice")
	require.Equal(t, http.StatusCreated, w.Code, "body: %v", resp)
	data = resp["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["appointment_id"])

	// Scheduling with an unregistered doctor is a bad request.
	w, _ = doRequest(t, "POST", "/appointments", map[string]interface{}{
		"doctor_address": "nobody",
		"scheduled_time": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}, "alice")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Only the assigned doctor confirms.
	w, _ = doRequest(t, "POST", "/appointments/0/confirm", nil, "dr-house")
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = doRequest(t, "POST", "/appointments/0/confirm", nil, "dr-house")
	assert.Equal(t, http.StatusConflict, w.Code)

	// The doctor writes the first medical record; it gets ID 0.
	w, resp = doRequest(t, "POST", "/records", map[string]interface{}{
		"patient_address": "alice",
		"diagnosis":       "lupus",
		"prescription":    "rest",
	}, "dr-house")
	require.Equal(t, http.StatusCreated, w.Code, "body: %v", resp)
	data = resp["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["record_id"])

	// The lab attaches results.
	w, _ = doRequest(t, "PUT", "/records/0/lab-results", map[string]string{
		"lab_results_ref": "sha256:abc123",
	}, "quest-lab")
	require.Equal(t, http.StatusOK, w.Code)

	// The doctor cannot attach results.
	w, _ = doRequest(t, "PUT", "/records/0/lab-results", map[string]string{
		"lab_results_ref": "sha256:evil",
	}, "dr-house")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// An identity with no role cannot read the record.
	w, _ = doRequest(t, "GET", "/records/0", nil, "stranger")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The stored record carries the lab reference and the original diagnosis.
	w, resp = doRequest(t, "GET", "/records/0", nil, "alice")
	require.Equal(t, http.StatusOK, w.Code)
	data = resp["data"].(map[string]interface{})
	assert.Equal(t, "sha256:abc123", data["lab_results_ref"])
	assert.Equal(t, "lupus", data["diagnosis"])

	// Listings come back in creation order.
	w, resp = doRequest(t, "GET", "/patients/alice/appointments", nil, "alice")
	require.Equal(t, http.StatusOK, w.Code)
	data = resp["data"].(map[string]interface{})
	assert.Equal(t, []interface{}{float64(0)}, data["appointment_ids"])

	w, resp = doRequest(t, "GET", fmt.Sprintf("/doctors/%s/records", "dr-house"), nil, "dr-house")
	require.Equal(t, http.StatusOK, w.Code)
	data = resp["data"].(map[string]interface{})
	assert.Equal(t, []interface{}{float64(0)}, data["record_ids"])

	// An unknown record is a 404.
	w, _ = doRequest(t, "GET", "/records/99", nil, "alice")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestReadCacheIsScopedPerCaller builds a router with the response cache
// enabled and checks that a cached profile read never leaks across callers:
// the guard verdict for one identity must not be replayed to another.
func TestReadCacheIsScopedPerCaller(t *testing.T) {
	store := memory.NewStore("admin")
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})

	identitySvc := identityService.NewService(store, log)
	patientSvc := patientService.NewService(store, log)
	appointmentSvc := appointmentService.NewService(store, log)
	medicalSvc := medicalService.NewService(store, log)

	cached := router.NewRouter(
		middleware.NewAuthMiddleware(jwtSvc),
		registryHandler.NewHandler(identitySvc),
		patientHandler.NewHandler(patientSvc, appointmentSvc, medicalSvc),
		appointmentHandler.NewHandler(appointmentSvc),
		medicalHandler.NewHandler(medicalSvc),
		handler.NewHandler(nil),
		router.RouterConfig{
			RateLimit:     rate.Limit(1000),
			RateBurst:     1000,
			CORSConfig:    middleware.DefaultCORSConfig(),
			MetricsPrefix: "registry_http_cache_test",
			ReadCacheTTL:  time.Minute,
		},
	)
	cached.Setup()

	w, _ := serveOn(t, cached, "POST", "/patients", map[string]interface{}{"name": "Alice", "age": 34}, "alice")
	require.Equal(t, http.StatusCreated, w.Code)
	w, _ = serveOn(t, cached, "POST", "/patients", map[string]interface{}{"name": "Mallory", "age": 41}, "mallory")
	require.Equal(t, http.StatusCreated, w.Code)

	// Alice reads her own profile, priming the cache for her identity.
	w, resp := serveOn(t, cached, "GET", "/patients/alice", nil, "alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Alice", resp["data"].(map[string]interface{})["name"])

	// Another patient asking for the same URL must still hit the guard
	// and be denied, not be served Alice's cached response.
	w, _ = serveOn(t, cached, "GET", "/patients/alice", nil, "mallory")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// The repeat read for the owner still succeeds.
	w, resp = serveOn(t, cached, "GET", "/patients/alice", nil, "alice")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Alice", resp["data"].(map[string]interface{})["name"])

	// Role lookups are open to any authenticated caller, and each caller's
	// entry is cached independently.
	for _, caller := range []string{"alice", "mallory"} {
		w, resp = serveOn(t, cached, "GET", "/registry/roles/alice", nil, caller)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "patient", resp["data"].(map[string]interface{})["role"])
	}
}
