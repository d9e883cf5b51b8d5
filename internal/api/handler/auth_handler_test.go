package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/config"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/api/middleware"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model/dto"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/pkg/response"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/repository"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/service"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testEnv 一套完整的测试依赖，所有 handler 测试共用
type testEnv struct {
	db                  *gorm.DB
	cfg                 *config.Config
	authService         *service.AuthService
	creditService       *service.CreditService
	usageService        *service.UsageService
	entitlementsService *service.EntitlementsService
	trialService        *service.TrialService
	subscriptionService *service.SubscriptionService
}

func setupEnv(t *testing.T) (*testEnv, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)

	cfg := &config.Config{
		JWT: config.JWTConfig{Secret: "test-secret-key", ExpireHours: 24},
		Billing: config.BillingConfig{
			WebhookSecret:    "test-webhook-secret",
			GracePeriodDays:  3,
			SignupBonus:      20,
			MonthlyCycleDays: 30,
			Trial:            config.TrialConfig{DurationHours: 5, Credits: 60, RevokeLeftover: true},
		},
		Tiers: map[string]config.TierConfig{
			model.PlanFree: {
				MonthlyCredits: 20,
				FeatureLimits:  map[string]int{"chat": 30, "image": 3},
			},
			model.PlanBasic: {
				MonthlyCredits: 200,
				FeatureLimits:  map[string]int{"chat": 0, "image": 20},
			},
			model.PlanPro: {
				MonthlyCredits: 600,
				FeatureLimits:  map[string]int{"chat": 0, "image": 0},
			},
		},
		Features: []config.FeatureConfig{
			{Name: "chat", Cost: 1},
			{Name: "image", Cost: 5},
		},
		AntiAbuse: config.AntiAbuseConfig{MaxGrantsPerIP: 3, MaxGrantsPerFingerprint: 1},
	}

	userRepo := repository.NewUserRepository(db)
	creditRepo := repository.NewCreditRepository(db)
	companionRepo := repository.NewCompanionRepository(db)
	usageRepo := repository.NewUsageRepository(db)

	creditService := service.NewCreditService(db, creditRepo, nil)
	antiAbuse := service.NewAntiAbuseService(db, repository.NewAntiAbuseRepository(db), cfg)

	env := &testEnv{
		db:                  db,
		cfg:                 cfg,
		authService:         service.NewAuthService(db, userRepo, creditRepo, creditService, antiAbuse, cfg),
		creditService:       creditService,
		usageService:        service.NewUsageService(db, userRepo, companionRepo, usageRepo, creditService, cfg),
		entitlementsService: service.NewEntitlementsService(userRepo, creditRepo, companionRepo, usageRepo, cfg),
		trialService:        service.NewTrialService(db, userRepo, creditService, cfg),
		subscriptionService: service.NewSubscriptionService(db, userRepo, repository.NewWebhookRepository(db), creditService, nil, cfg),
	}

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}
	return env, cleanup
}

// mockAuth 跳过 JWT 直接注入用户 ID
func mockAuth(userID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserIDKey, userID)
		c.Next()
	}
}

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func TestAuthHandler_Register_Success(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	handler := NewAuthHandler(env.authService)
	router := gin.New()
	router.POST("/register", handler.Register)

	w := performRequest(router, "POST", "/register", dto.RegisterRequest{
		Username: "testuser",
		Email:    "test@example.com",
		Password: "password123",
	})
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data := resp.Data.(map[string]interface{})
	assert.True(t, data["bonus_granted"].(bool))
}

func TestAuthHandler_Register_DuplicateEmail(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	handler := NewAuthHandler(env.authService)
	router := gin.New()
	router.POST("/register", handler.Register)

	req := dto.RegisterRequest{
		Username: "testuser1",
		Email:    "test@example.com",
		Password: "password123",
	}
	w := performRequest(router, "POST", "/register", req)
	assert.Equal(t, http.StatusOK, w.Code)

	req.Username = "testuser2"
	w = performRequest(router, "POST", "/register", req)
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeDuplicateAction, resp.Code)
}

func TestAuthHandler_Register_InvalidParams(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	handler := NewAuthHandler(env.authService)
	router := gin.New()
	router.POST("/register", handler.Register)

	// 密码太短
	w := performRequest(router, "POST", "/register", dto.RegisterRequest{
		Username: "testuser",
		Email:    "test@example.com",
		Password: "short",
	})
	resp := parseResponse(t, w)
	assert.Equal(t, response.CodeParamError, resp.Code)
}

func TestAuthHandler_Login(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	authHandler := NewAuthHandler(env.authService)
	router := gin.New()
	router.POST("/register", authHandler.Register)
	router.POST("/login", authHandler.Login)

	performRequest(router, "POST", "/register", dto.RegisterRequest{
		Username: "testuser",
		Email:    "test@example.com",
		Password: "password123",
	})

	w := performRequest(router, "POST", "/login", dto.LoginRequest{
		Email:    "test@example.com",
		Password: "password123",
	})
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeSuccess, resp.Code)
	data := resp.Data.(map[string]interface{})
	assert.NotEmpty(t, data["token"])
}

func TestAuthHandler_Login_WrongPassword(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	authHandler := NewAuthHandler(env.authService)
	router := gin.New()
	router.POST("/register", authHandler.Register)
	router.POST("/login", authHandler.Login)

	performRequest(router, "POST", "/register", dto.RegisterRequest{
		Username: "testuser",
		Email:    "test@example.com",
		Password: "password123",
	})

	w := performRequest(router, "POST", "/login", dto.LoginRequest{
		Email:    "test@example.com",
		Password: "wrong-password",
	})
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}
