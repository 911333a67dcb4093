package homeconnect

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *TestTokenSource, *RateTracker) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	tokens := &TestTokenSource{AccessToken: "tok-1", RefreshedTok: "tok-2"}
	rate := NewRateTracker(zap.NewNop())
	client := NewClient(server.URL, "en-US", tokens, rate, zap.NewNop())
	return client, tokens, rate
}

func TestClientGetSuccess(t *testing.T) {
	assert := assert.New(t)

	client, _, rate := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal("application/vnd.bsh.sdk.v1+json", r.Header.Get("Accept"))
		assert.Equal("en-US", r.Header.Get("Accept-Language"))
		w.Header().Set(HEADER_RATELIMIT_REMAINING, "900")
		w.Header().Set(HEADER_RATELIMIT_LIMIT, "1000")
		_, _ = w.Write([]byte(`{"data":{"key":"value"}}`))
	})

	body, err := client.Get(context.Background(), "/api/homeappliances/HA-1/status")
	assert.NoError(err)
	assert.Contains(string(body), "value")

	remaining, limit, _ := rate.Quota()
	assert.Equal(900, remaining)
	assert.Equal(1000, limit)
}

func TestClient401RefreshRetryOnce(t *testing.T) {
	assert := assert.New(t)

	var calls int
	client, tokens, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Authorization") == "Bearer tok-2" {
			_, _ = w.Write([]byte(`{"data":{}}`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Get(context.Background(), "/api/homeappliances")
	assert.NoError(err)
	assert.Equal(2, calls, "exactly one retry")
	assert.Equal(1, tokens.Refreshes, "exactly one refresh")
}

func TestClient401NoRefreshLoop(t *testing.T) {
	assert := assert.New(t)

	var calls int
	client, tokens, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Get(context.Background(), "/api/homeappliances")
	assert.ErrorIs(err, ErrUnauthorized)
	assert.Equal(2, calls, "no second retry after a retried 401")
	assert.Equal(1, tokens.Refreshes)
}

func TestClient404ActiveProgramIsNotAnError(t *testing.T) {
	assert := assert.New(t)

	client, _, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"key":"SDK.Error.NoProgramActive","description":"no active program"}}`))
	})

	_, err := client.Get(context.Background(), "/api/homeappliances/HA-1/programs/active")
	assert.ErrorIs(err, ErrNoActiveProgram)

	// any other 404 is a plain API error
	_, err = client.Get(context.Background(), "/api/homeappliances/HA-1/settings/nope")
	assert.NotErrorIs(err, ErrNoActiveProgram)
	var apiErr *APIError
	assert.ErrorAs(err, &apiErr)
	assert.Equal(404, apiErr.StatusCode)
}

func TestClient409Conflict(t *testing.T) {
	assert := assert.New(t)

	client, _, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":{"key":"SDK.Error.WrongOperationState","description":"door open"}}`))
	})

	err := client.Put(context.Background(), "/api/homeappliances/HA-1/programs/active", map[string]any{"key": "P"})
	assert.ErrorIs(err, ErrConflict)
	var apiErr *APIError
	assert.ErrorAs(err, &apiErr)
	assert.Equal("SDK.Error.WrongOperationState", apiErr.Key)
}

func TestClient429SetsCooldownAndBlocksMutations(t *testing.T) {
	assert := assert.New(t)

	var calls int
	client, _, rate := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set(HEADER_RATELIMIT_REMAINING, "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	err := client.Delete(context.Background(), "/api/homeappliances/HA-1/programs/active")
	assert.ErrorIs(err, ErrRateLimited)
	assert.True(rate.IsCoolingDown())
	remaining, _, _ := rate.Quota()
	assert.Equal(0, remaining)

	// mutating calls are refused pre-flight while cooling down
	err = client.Put(context.Background(), "/api/homeappliances/HA-1/settings/x", map[string]any{"value": true})
	assert.ErrorIs(err, ErrRateLimited)
	err = client.Delete(context.Background(), "/api/homeappliances/HA-1/programs/active")
	assert.ErrorIs(err, ErrRateLimited)
	assert.Equal(1, calls, "no request leaves the process during cooldown")

	// reads still go through
	_, err = client.Get(context.Background(), "/api/homeappliances")
	assert.Error(err)
	assert.Equal(2, calls)
}

func TestClient503Offline(t *testing.T) {
	assert := assert.New(t)

	client, _, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.Get(context.Background(), "/api/homeappliances/HA-1/status")
	assert.ErrorIs(err, ErrApplianceOffline)
}

func TestClientPutWrapsBody(t *testing.T) {
	assert := assert.New(t)

	client, _, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var wrapper map[string]any
		assert.NoError(json.Unmarshal(body, &wrapper))
		data, ok := wrapper["data"].(map[string]any)
		assert.True(ok, "body must be data-wrapped")
		assert.Equal("BSH.Common.Program.Dishcare.Dishwasher.Eco50", data["key"])
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.Put(context.Background(), "/api/homeappliances/HA-1/programs/active",
		map[string]any{"key": "BSH.Common.Program.Dishcare.Dishwasher.Eco50"})
	assert.NoError(err)
}

func TestClientNoToken(t *testing.T) {
	assert := assert.New(t)

	client, tokens, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made without a token")
	})
	tokens.FailToken = true

	_, err := client.Get(context.Background(), "/api/homeappliances")
	assert.ErrorIs(err, ErrNoToken)
}

func TestClientGetAppliances(t *testing.T) {
	assert := assert.New(t)

	client, _, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/api/homeappliances", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"homeappliances":[
			{"haId":"BOSCH-DISHWASHER-01","name":"Dishwasher","brand":"Bosch","type":"Dishwasher","connected":true},
			{"haId":"SIEMENS-OVEN-02","name":"Oven","brand":"Siemens","type":"Oven","connected":false}]}}`))
	})

	appliances, err := client.GetAppliances(context.Background())
	assert.NoError(err)
	assert.Len(appliances, 2)
	assert.Equal("BOSCH-DISHWASHER-01", appliances[0].HaId)
	assert.True(appliances[0].Connected)
	assert.False(appliances[1].Connected)
}
