package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/model"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/pkg/response"
	"github.com/TheGamerJay/soulbridgeai-unified-sub001/internal/testutil"
)

func setupEntitlementsRouter(env *testEnv, userID int64) *gin.Engine {
	handler := NewEntitlementsHandler(env.entitlementsService)
	router := gin.New()
	router.Use(mockAuth(userID))
	router.GET("/entitlements", handler.GetEntitlements)
	router.GET("/companions", handler.ListCompanions)
	return router
}

func TestEntitlementsHandler_GetEntitlements(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db)
	testutil.GrantCredits(t, env.db, user.ID, model.PoolMonthly, 20)
	testutil.TestCompanion(t, env.db, "小暖", model.PlanFree)
	testutil.TestCompanion(t, env.db, "星河", model.PlanPro)

	router := setupEntitlementsRouter(env, user.ID)
	w := performRequest(router, "GET", "/entitlements", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, model.PlanFree, data["access_tier"])
	assert.Equal(t, model.PlanFree, data["limit_tier"])

	credits := data["credits"].(map[string]interface{})
	assert.Equal(t, float64(20), credits["monthly"])
	assert.Equal(t, float64(20), credits["total"])

	companions := data["companions"].([]interface{})
	require.Len(t, companions, 2)
}

func TestEntitlementsHandler_GetEntitlements_TrialActive(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	now := time.Now()
	user := testutil.TestUser(t, env.db,
		testutil.WithTrialUsed(),
		testutil.WithTrial(now.Add(-time.Hour), now.Add(4*time.Hour)),
	)
	testutil.GrantCredits(t, env.db, user.ID, model.PoolTrial, 60)

	router := setupEntitlementsRouter(env, user.ID)
	w := performRequest(router, "GET", "/entitlements", nil)
	resp := parseResponse(t, w)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, model.PlanPro, data["access_tier"])
	assert.Equal(t, model.PlanFree, data["limit_tier"])

	trial := data["trial"].(map[string]interface{})
	assert.True(t, trial["active"].(bool))
	assert.Equal(t, float64(60), trial["credits_remaining"])
}

func TestEntitlementsHandler_ListCompanions(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	user := testutil.TestUser(t, env.db, testutil.WithPlan(model.PlanBasic, model.SubStatusActive, model.CycleMonthly))
	testutil.TestCompanion(t, env.db, "小暖", model.PlanFree)
	testutil.TestCompanion(t, env.db, "拾光", model.PlanBasic)
	testutil.TestCompanion(t, env.db, "星河", model.PlanPro)

	router := setupEntitlementsRouter(env, user.ID)
	w := performRequest(router, "GET", "/companions", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeSuccess, resp.Code)

	data := resp.Data.(map[string]interface{})
	companions := data["companions"].([]interface{})
	require.Len(t, companions, 3)

	accessible := 0
	for _, item := range companions {
		if item.(map[string]interface{})["accessible"].(bool) {
			accessible++
		}
	}
	assert.Equal(t, 2, accessible)
}

func TestEntitlementsHandler_UserNotFound(t *testing.T) {
	env, cleanup := setupEnv(t)
	defer cleanup()

	router := setupEntitlementsRouter(env, 424242)
	w := performRequest(router, "GET", "/entitlements", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}
