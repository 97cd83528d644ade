package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/saukimart/internal/services"
)

func newCatalogApp(t *testing.T) (*fiber.App, sqlmock.Sqlmock) {
	t.Helper()
	mockDb, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDb.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDb, DriverName: "postgres"}),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	h := NewCatalogHandler(services.NewCatalogStore(db, services.NoopCatalogCache(), discardLogger()))
	app := newTestApp()
	app.Post("/data-plans", h.CreateDataPlan)
	app.Put("/data-plans/:id", h.UpdateDataPlan)
	app.Get("/system/message", h.GetSystemMessage)
	return app, mock
}

func TestCreateDataPlanRejectsUnmappedNetwork(t *testing.T) {
	app, mock := newCatalogApp(t)

	resp, body := postJSON(t, app, "/data-plans", `{"network":"NTEL","data":"1GB","price":300,"plan_code":1001}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "MAPPING_ERROR", body["code"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDataPlanValidatesInput(t *testing.T) {
	app, _ := newCatalogApp(t)

	resp, _ := postJSON(t, app, "/data-plans", `{"network":"MTN","data":"1GB","price":0,"plan_code":1001}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUpdateDataPlanRejectsBadID(t *testing.T) {
	app, _ := newCatalogApp(t)

	req := httptest.NewRequest(http.MethodPut, "/data-plans/not-a-uuid", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetSystemMessageWithoutActiveMessage(t *testing.T) {
	app, mock := newCatalogApp(t)
	mock.ExpectQuery(`SELECT \* FROM "system_messages" WHERE is_active = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "content", "type", "is_active"}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/system/message", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	v, ok := body["message"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}
