// api/controller/policy_controller_test.go
package controller_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-net/warden/api/controller"
	"github.com/warden-net/warden/api/enforce"
	apperrors "github.com/warden-net/warden/api/errors"
	"github.com/warden-net/warden/api/model"
)

// stubPolicyService scripts the service layer per test.
type stubPolicyService struct {
	createFn func(model.Policy) (*model.Policy, []model.Conflict, error)
	updateFn func(model.Policy) (*model.Policy, []model.Conflict, error)
	deleteFn func(string) error
	getFn    func(string) (*model.Policy, error)
	list     []*model.Policy
}

func (s *stubPolicyService) CreatePolicy(_ context.Context, p model.Policy) (*model.Policy, []model.Conflict, error) {
	return s.createFn(p)
}

func (s *stubPolicyService) UpdatePolicy(_ context.Context, p model.Policy) (*model.Policy, []model.Conflict, error) {
	return s.updateFn(p)
}

func (s *stubPolicyService) DeletePolicy(_ context.Context, id string) error { return s.deleteFn(id) }

func (s *stubPolicyService) GetPolicy(_ context.Context, id string) (*model.Policy, error) {
	return s.getFn(id)
}

func (s *stubPolicyService) ListPolicies(_ context.Context, _ bool) ([]*model.Policy, error) {
	return s.list, nil
}

func (s *stubPolicyService) SetEnabled(_ context.Context, _ string, _ bool) error { return nil }
func (s *stubPolicyService) Snapshot() []*model.Policy                            { return s.list }
func (s *stubPolicyService) Conflicts() []model.Conflict                          { return nil }
func (s *stubPolicyService) Templates() []model.PolicyTemplate                    { return model.PolicyTemplates }

type stubEnforcementService struct {
	applied     int
	applyErr    error
	suggestions []model.PolicySuggestion
}

func (s *stubEnforcementService) EvaluateDevice(_ context.Context, mac, _ string, _ int) model.Decision {
	return model.Decision{Action: model.ActionLogOnly, Default: true,
		Context: model.EvaluationContext{SourceMAC: mac}}
}

func (s *stubEnforcementService) TestPolicy(_ context.Context, _ *model.Policy, mac string) (bool, model.EvaluationContext) {
	return true, model.EvaluationContext{SourceMAC: mac}
}

func (s *stubEnforcementService) SuggestPolicies(_ context.Context, _ string) []model.PolicySuggestion {
	return s.suggestions
}

func (s *stubEnforcementService) ApplyAll(_ context.Context) (int, error) {
	return s.applied, s.applyErr
}

func (s *stubEnforcementService) State() map[string]enforce.DeviceState { return nil }

func setupRouter(policySvc *stubPolicyService, enfSvc *stubEnforcementService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	api := r.Group("/")
	controller.NewPolicyController(policySvc, enfSvc).RegisterRoutes(api)
	return r
}

func TestPolicyController(t *testing.T) {
	t.Run("CreatePolicy_Success", func(t *testing.T) {
		svc := &stubPolicyService{
			createFn: func(p model.Policy) (*model.Policy, []model.Conflict, error) {
				p.ID = "p1"
				return &p, nil, nil
			},
		}
		router := setupRouter(svc, &stubEnforcementService{})

		body := strings.NewReader(`{"name":"Block IoT","source":"category:iot","action":"block","priority":60,"enabled":true}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)

		var resp struct {
			Policy model.Policy `json:"policy"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "p1", resp.Policy.ID)
	})

	t.Run("CreatePolicy_Invalid", func(t *testing.T) {
		svc := &stubPolicyService{
			createFn: func(model.Policy) (*model.Policy, []model.Conflict, error) {
				return nil, nil, apperrors.NewValidationError("policy", "unknown action")
			},
		}
		router := setupRouter(svc, &stubEnforcementService{})

		body := strings.NewReader(`{"name":"bad","source":"any","action":"obliterate"}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("CreatePolicy_ReportsConflicts", func(t *testing.T) {
		svc := &stubPolicyService{
			createFn: func(p model.Policy) (*model.Policy, []model.Conflict, error) {
				p.ID = "p2"
				return &p, []model.Conflict{{PolicyA: "p1", PolicyB: "p2", Severity: model.ConflictHigh}}, nil
			},
		}
		router := setupRouter(svc, &stubEnforcementService{})

		body := strings.NewReader(`{"name":"Allow all","source":"any","action":"allow","priority":60,"enabled":true}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code, "conflicts must not block the save")

		var resp struct {
			Conflicts []model.Conflict `json:"conflicts"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Conflicts, 1)
	})

	t.Run("UpdatePolicy_NotFound", func(t *testing.T) {
		svc := &stubPolicyService{
			updateFn: func(model.Policy) (*model.Policy, []model.Conflict, error) {
				return nil, nil, apperrors.ErrPolicyNotFound
			},
		}
		router := setupRouter(svc, &stubEnforcementService{})

		body := strings.NewReader(`{"name":"Updated"}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/policies/missing", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("DeletePolicy_Success", func(t *testing.T) {
		svc := &stubPolicyService{deleteFn: func(string) error { return nil }}
		router := setupRouter(svc, &stubEnforcementService{})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/policies/p1", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("TestPolicy_DryRun", func(t *testing.T) {
		svc := &stubPolicyService{
			getFn: func(id string) (*model.Policy, error) {
				return &model.Policy{ID: id, Name: "Bedtime", Enabled: true}, nil
			},
		}
		router := setupRouter(svc, &stubEnforcementService{})

		body := strings.NewReader(`{"mac":"aa:bb:cc:dd:ee:ff"}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies/p1/test", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			WouldApply []struct {
				MAC     string `json:"mac"`
				Matches bool   `json:"matches"`
			} `json:"would_apply"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.WouldApply, 1)
		assert.Equal(t, "aa:bb:cc:dd:ee:ff", resp.WouldApply[0].MAC)
		assert.True(t, resp.WouldApply[0].Matches)
	})

	t.Run("TestPolicy_MultipleDevices", func(t *testing.T) {
		svc := &stubPolicyService{
			getFn: func(id string) (*model.Policy, error) {
				return &model.Policy{ID: id, Name: "Bedtime", Enabled: true}, nil
			},
		}
		router := setupRouter(svc, &stubEnforcementService{})

		body := strings.NewReader(`{"macs":["aa:bb:cc:dd:ee:01","aa:bb:cc:dd:ee:02"]}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies/p1/test", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			WouldApply []struct {
				MAC string `json:"mac"`
			} `json:"would_apply"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.WouldApply, 2)
	})

	t.Run("TestPolicy_NoDevices", func(t *testing.T) {
		router := setupRouter(&stubPolicyService{}, &stubEnforcementService{})

		body := strings.NewReader(`{}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies/p1/test", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("ApplyAll_ReportsDirectiveCount", func(t *testing.T) {
		router := setupRouter(&stubPolicyService{}, &stubEnforcementService{applied: 3})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies/apply", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"applied":3}`, w.Body.String())
	})

	t.Run("SuggestPolicies", func(t *testing.T) {
		enfSvc := &stubEnforcementService{
			suggestions: []model.PolicySuggestion{{
				Policy: model.Policy{
					Name:   "Quarantine Low Trust - aa:bb:cc:dd:ee:ff",
					Source: "aa:bb:cc:dd:ee:ff",
					Action: model.ActionQuarantine,
				},
				Confidence: 0.92,
				Reason:     "trust score 20 is below the low-trust threshold",
			}},
		}
		router := setupRouter(&stubPolicyService{}, enfSvc)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/policies/suggest/aa:bb:cc:dd:ee:ff", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			DeviceMAC   string                   `json:"device_mac"`
			Suggestions []model.PolicySuggestion `json:"suggestions"`
			Total       int                      `json:"total"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "aa:bb:cc:dd:ee:ff", resp.DeviceMAC)
		assert.Equal(t, 1, resp.Total)
		require.Len(t, resp.Suggestions, 1)
		assert.Equal(t, model.ActionQuarantine, resp.Suggestions[0].Policy.Action)
	})

	t.Run("SuggestPolicies_HealthyDeviceEmptyList", func(t *testing.T) {
		router := setupRouter(&stubPolicyService{}, &stubEnforcementService{})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/policies/suggest/aa:bb:cc:dd:ee:ff", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"device_mac":"aa:bb:cc:dd:ee:ff","suggestions":[],"total":0}`, w.Body.String())
	})

	t.Run("ListTemplates", func(t *testing.T) {
		router := setupRouter(&stubPolicyService{}, &stubEnforcementService{})

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/policies/templates", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)

		var templates []model.PolicyTemplate
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &templates))
		assert.NotEmpty(t, templates)
	})
}
