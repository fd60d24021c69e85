package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/placement-rounds-api/internal/middleware"
	"github.com/noah-isme/placement-rounds-api/internal/models"
)

var (
	adminClaims   = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	studentClaims = &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}
)

func newTestContext(t *testing.T, method, target, body string, claims *models.JWTClaims, params ...gin.Param) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	c.Request = req
	c.Params = params
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

type envelope struct {
	Data       json.RawMessage        `json:"data"`
	Error      *struct{ Code string } `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}
