// controller/policy_controller_test.go
package controller_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/veritaskey/arbiter/audit"
	"github.com/veritaskey/arbiter/controller"
	"github.com/veritaskey/arbiter/dao"
	arbiter_errors "github.com/veritaskey/arbiter/errors"
	logger "github.com/veritaskey/arbiter/logging"
	"github.com/veritaskey/arbiter/model"
	"github.com/veritaskey/arbiter/pdp"
	mock_service "github.com/veritaskey/arbiter/test/service_mock"
)

func newTestEngine(t *testing.T) *pdp.Engine {
	t.Helper()
	engine := pdp.NewEngine(dao.NewMemoryPolicyStore(), audit.NewService(audit.NewMemoryRepository(), 16), pdp.Options{})
	t.Cleanup(engine.Close)
	return engine
}

func TestPolicyController(t *testing.T) {
	logger.InitTestLogger()
	gin.SetMode(gin.TestMode)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockPolicyService := mock_service.NewMockIPolicyService(ctrl)
	policyController := controller.NewPolicyController(mockPolicyService, newTestEngine(t))
	router := gin.New()
	api := router.Group("/")
	policyController.RegisterRoutes(api)

	t.Run("CreatePolicy_Success", func(t *testing.T) {
		mockPolicyService.EXPECT().
			CreatePolicy(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(&model.Policy{PolicyID: "POL_1", Name: "Test Policy", Version: 1}, nil)

		body := strings.NewReader(`{"policy_id":"POL_1","name":"Test Policy","effect":"ALLOW","scope":"tenant"}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("CreatePolicy_Failure_Duplicate", func(t *testing.T) {
		mockPolicyService.EXPECT().
			CreatePolicy(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, arbiter_errors.ErrDuplicatePolicy)

		body := strings.NewReader(`{"policy_id":"POL_1","name":"Test Policy"}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("UpdatePolicy_Success", func(t *testing.T) {
		mockPolicyService.EXPECT().
			UpdatePolicy(gomock.Any(), "POL_1", gomock.Any(), 1, gomock.Any()).
			Return(&model.Policy{PolicyID: "POL_1", Name: "Updated Policy", Version: 2}, nil)

		body := strings.NewReader(`{"name":"Updated Policy","expectedVersion":1}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/policies/POL_1", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("UpdatePolicy_Failure_VersionConflict", func(t *testing.T) {
		mockPolicyService.EXPECT().
			UpdatePolicy(gomock.Any(), "POL_1", gomock.Any(), 1, gomock.Any()).
			Return(nil, arbiter_errors.ErrVersionConflict)

		body := strings.NewReader(`{"name":"Updated Policy","expectedVersion":1}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/policies/POL_1", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("UpdatePolicy_Failure_NotFound", func(t *testing.T) {
		mockPolicyService.EXPECT().
			UpdatePolicy(gomock.Any(), "POL_MISSING", gomock.Any(), 1, gomock.Any()).
			Return(nil, arbiter_errors.ErrPolicyNotFound)

		body := strings.NewReader(`{"name":"Updated Policy","expectedVersion":1}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/policies/POL_MISSING", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("UpdatePolicy_Failure_MissingExpectedVersion", func(t *testing.T) {
		body := strings.NewReader(`{"name":"Updated Policy"}`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/policies/POL_1", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("DeletePolicy_Success", func(t *testing.T) {
		mockPolicyService.EXPECT().
			DeletePolicy(gomock.Any(), "POL_1", gomock.Any()).
			Return(nil)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/policies/POL_1", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("DeletePolicy_Failure_Protected", func(t *testing.T) {
		mockPolicyService.EXPECT().
			DeletePolicy(gomock.Any(), "TENANT_ISOLATION", gomock.Any()).
			Return(arbiter_errors.ErrProtectedPolicy)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/policies/TENANT_ISOLATION", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("TogglePolicy_Success", func(t *testing.T) {
		mockPolicyService.EXPECT().
			TogglePolicy(gomock.Any(), "POL_1", gomock.Any()).
			Return(&model.Policy{PolicyID: "POL_1", IsActive: false, Version: 2}, nil)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies/POL_1/toggle", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("GetPolicy_Failure_NotFound", func(t *testing.T) {
		mockPolicyService.EXPECT().
			GetPolicy(gomock.Any(), "POL_MISSING").
			Return(nil, arbiter_errors.ErrPolicyNotFound)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/policies/POL_MISSING", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("ListPolicies_Success", func(t *testing.T) {
		mockPolicyService.EXPECT().
			ListPolicies(gomock.Any(), gomock.Any(), 10, 0).
			Return([]*model.Policy{{PolicyID: "POL_1"}}, nil)

		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/policies", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("BulkCreatePolicies_Success", func(t *testing.T) {
		mockPolicyService.EXPECT().
			BulkCreatePolicies(gomock.Any(), gomock.Any(), gomock.Any()).
			Return([]string{"POL_1", "POL_2"}, nil)

		body := strings.NewReader(`[{"policy_id":"POL_1"},{"policy_id":"POL_2"}]`)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies/bulk", body)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("InitializeCorePolicy_Success", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies/core/TENANT_ISOLATION/initialize", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("InitializeCorePolicy_Failure_Unknown", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/policies/core/NOT_A_CORE_POLICY/initialize", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("RefreshCache_Success", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/cache/refresh", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
