package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/admitflow/admitflow/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func respondTo(err error) (*httptest.ResponseRecorder, map[string]string) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondError(c, zap.NewNop(), err)

	body := make(map[string]string)
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestRespondError_Maps_Each_Error_Category_To_Its_Status(t *testing.T) {
	cases := []struct {
		name     string
		sentinel error
		status   int
	}{
		{"validation", models.ErrValidation, http.StatusBadRequest},
		{"authorization", models.ErrAuthorization, http.StatusForbidden},
		{"not found", models.ErrNotFound, http.StatusNotFound},
		{"no recipients", models.ErrNoRecipients, http.StatusUnprocessableEntity},
		{"duplicate subscription", models.ErrDuplicateSubscription, http.StatusConflict},
		{"transient transport", models.ErrTransientTransport, http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := require.New(t)

			// Given a service error wrapped the way services wrap them
			wrapped := fmt.Errorf("send message: %w", tc.sentinel)

			// When the handler layer responds
			w, body := respondTo(wrapped)

			// Then the category decides the status and the body carries an error field
			req.Equal(tc.status, w.Code)
			req.NotEmpty(body["error"])
		})
	}
}

func TestRespondError_Category_Errors_Keep_Their_Message(t *testing.T) {
	req := require.New(t)

	// Given a validation error with a caller-facing message
	err := fmt.Errorf("body must not be empty: %w", models.ErrValidation)

	// When the handler layer responds
	w, body := respondTo(err)

	// Then the client sees the real message
	req.Equal(http.StatusBadRequest, w.Code)
	req.Equal("body must not be empty: "+models.ErrValidation.Error(), body["error"])
}

func TestRespondError_Transport_Failures_Get_A_Generic_Body(t *testing.T) {
	req := require.New(t)

	// Given a transport error carrying broker internals
	err := fmt.Errorf("publish to amqp://broker:5672: %w", models.ErrTransientTransport)

	// When the handler layer responds
	w, body := respondTo(err)

	// Then the status says retry later and the broker details stay server-side
	req.Equal(http.StatusServiceUnavailable, w.Code)
	req.Equal("messaging temporarily unavailable", body["error"])
	req.NotContains(body["error"], "amqp")
}

func TestRespondError_Unclassified_Errors_Are_A_Generic_500(t *testing.T) {
	req := require.New(t)

	// Given an error outside the taxonomy
	err := errors.New("pq: connection reset by peer")

	// When the handler layer responds
	w, body := respondTo(err)

	// Then nothing internal leaks to the client
	req.Equal(http.StatusInternalServerError, w.Code)
	req.Equal("internal error", body["error"])
}
