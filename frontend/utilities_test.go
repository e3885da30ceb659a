package frontend

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpacahq/aesdsocket/utils"
)

type fakeStatus struct {
	accepting bool
	running   int
}

func (f fakeStatus) Accepting() bool { return f.accepting }
func (f fakeStatus) Running() int    { return f.running }

func TestHeartbeat(t *testing.T) {
	startTime := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	utils.Tag = "dev"

	tests := map[string]struct {
		status         fakeStatus
		expectedStatus string
		expectedCode   int
	}{
		"Serving": {
			status:         fakeStatus{accepting: true, running: 2},
			expectedStatus: "serving",
			expectedCode:   http.StatusOK,
		},
		"ShuttingDown": {
			status:         fakeStatus{accepting: false},
			expectedStatus: "shutting down",
			expectedCode:   http.StatusServiceUnavailable,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewUtilityAPIHandlers(startTime, tt.status, nil).heartbeat(rec, nil)

			hm := HeartbeatMessage{}
			require.Nil(t, json.NewDecoder(rec.Body).Decode(&hm))
			assert.Equal(t, tt.expectedStatus, hm.Status)
			assert.Equal(t, "dev", hm.Version)
			assert.Equal(t, tt.status.running, hm.Connections)
			assert.Equal(t, tt.expectedCode, rec.Code)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewUtilityAPIHandlers(time.Now(), fakeStatus{accepting: true}, nil).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.Nil(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.Nil(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "aesd_socket_connections_accepted_total")
}
