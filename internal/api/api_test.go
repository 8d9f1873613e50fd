package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/sis061/pilltime-sub000/internal"
	"github.com/sis061/pilltime-sub000/internal/auth"
	"github.com/sis061/pilltime-sub000/internal/config"
	"github.com/sis061/pilltime-sub000/internal/service"
	"github.com/sis061/pilltime-sub000/internal/storage"
)

const testToken = "test-token"

type envelope struct {
	Data  json.RawMessage            `json:"data"`
	Meta  map[string]json.RawMessage `json:"meta"`
	Error *internal.AppError         `json:"error"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := internal.NewNopLogger()

	store, err := storage.NewFileStorage(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cache := service.NewIndicatorCache()
	medicines := service.NewMedicineService(store, cache, 7, logger)
	indicator := service.NewIndicatorService(store, cache, language.Und, logger)

	cfg := &config.Config{Env: "development", LocalToken: testToken}
	provider := auth.NewLocalAuthProvider(testToken, logger)

	r := gin.New()
	RegisterRoutes(r, NewApp(logger, medicines, indicator), provider, cfg)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w, env
}

func dailyMedicineBody(name string) map[string]any {
	return map[string]any{
		"name": name,
		"schedules": []map[string]any{{
			"time_of_day":    "08:00",
			"notify_enabled": true,
			"recurrence": map[string]any{
				"type":     "daily",
				"timezone": "UTC",
			},
		}},
	}
}

func TestAuthRequired(t *testing.T) {
	r := newTestRouter(t)

	w, _ := doJSON(t, r, http.MethodGet, "/api/medicines", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, r, http.MethodGet, "/api/medicines", nil, "wrong-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMedicineLifecycleOverHTTP(t *testing.T) {
	r := newTestRouter(t)
	today := time.Now().UTC().Format("2006-01-02")
	month := today[:7]

	// Create a daily 08:00 medicine; the forward window materializes now.
	w, env := doJSON(t, r, http.MethodPost, "/api/medicines", dailyMedicineBody("Aspirin"), testToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var view service.MedicineView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "Aspirin", view.Name)
	require.Len(t, view.Schedules, 1)

	var gen service.GenerationResult
	require.NoError(t, json.Unmarshal(env.Meta["generation"], &gen))
	assert.Equal(t, 8, gen.Created)
	assert.Empty(t, gen.Failed)

	w, env = doJSON(t, r, http.MethodGet, "/api/medicines", nil, testToken)
	require.Equal(t, http.StatusOK, w.Code)
	var list []service.MedicineView
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)

	// Today's instance exists and can be marked taken.
	w, env = doJSON(t, r, http.MethodGet, "/api/calendar/day/"+today, nil, testToken)
	require.Equal(t, http.StatusOK, w.Code)
	var day []service.DoseView
	require.NoError(t, json.Unmarshal(env.Data, &day))
	require.Len(t, day, 1)
	assert.Equal(t, "Aspirin", day[0].MedicineName)

	w, env = doJSON(t, r, http.MethodPut, "/api/intakes/"+day[0].ID+"/status",
		map[string]any{"status": "taken"}, testToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated internal.DoseInstance
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, internal.DoseTaken, updated.Status)
	assert.Equal(t, internal.SourceManual, updated.Source)

	// The month view reflects the write immediately.
	w, env = doJSON(t, r, http.MethodGet, "/api/calendar/month/"+month, nil, testToken)
	require.Equal(t, http.StatusOK, w.Code)
	var dots map[string][]internal.DayDot
	require.NoError(t, json.Unmarshal(env.Data, &dots))
	require.Len(t, dots[today], 1)
	assert.Equal(t, internal.DoseTaken, dots[today][0].Status)
	assert.Equal(t, "A", dots[today][0].Label)

	// missed is never accepted from a client.
	w, _ = doJSON(t, r, http.MethodPut, "/api/intakes/"+day[0].ID+"/status",
		map[string]any{"status": "missed"}, testToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Deleting the medicine empties every read surface.
	w, _ = doJSON(t, r, http.MethodDelete, "/api/medicines/"+view.ID, nil, testToken)
	require.Equal(t, http.StatusOK, w.Code)

	w, env = doJSON(t, r, http.MethodGet, "/api/medicines", nil, testToken)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Empty(t, list)

	w, env = doJSON(t, r, http.MethodGet, "/api/calendar/day/"+today, nil, testToken)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &day))
	assert.Empty(t, day)
}

func TestMedicineValidationOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	body := dailyMedicineBody("Aspirin")
	body["schedules"] = []map[string]any{}
	w, env := doJSON(t, r, http.MethodPost, "/api/medicines", body, testToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, internal.KindValidation, env.Error.Kind)

	body = dailyMedicineBody("Aspirin")
	body["schedules"].([]map[string]any)[0]["time_of_day"] = "8 o'clock"
	w, _ = doJSON(t, r, http.MethodPost, "/api/medicines", body, testToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodGet, "/api/calendar/month/January", nil, testToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, r, http.MethodGet, "/api/medicines/no-such-id", nil, testToken)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPushTargetsOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	w, _ := doJSON(t, r, http.MethodPost, "/api/push-targets",
		map[string]any{"endpoint": ""}, testToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env := doJSON(t, r, http.MethodPost, "/api/push-targets",
		map[string]any{"endpoint": "https://push.example/abc"}, testToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var target internal.PushTarget
	require.NoError(t, json.Unmarshal(env.Data, &target))
	assert.NotEmpty(t, target.ID)

	w, _ = doJSON(t, r, http.MethodDelete, "/api/push-targets/"+target.ID, nil, testToken)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = doJSON(t, r, http.MethodDelete, "/api/push-targets/"+target.ID, nil, testToken)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
