package health_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bsv-blockchain/plugindex/errors"
	"github.com/bsv-blockchain/plugindex/util/health"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticCheck(status int, message string, err error) func(context.Context, bool) (int, string, error) {
	return func(context.Context, bool) (int, string, error) {
		return status, message, err
	}
}

func TestCheckAll(t *testing.T) {
	ctx := context.Background()

	t.Run("all healthy", func(t *testing.T) {
		status, details, err := health.CheckAll(ctx, false, []health.Check{
			{Name: "store", Check: staticCheck(http.StatusOK, "OK", nil)},
			{Name: "nested", Check: staticCheck(http.StatusOK, `{"status":"200"}`, nil)},
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, status)

		var parsed map[string]interface{}
		require.NoError(t, jsoniter.Unmarshal([]byte(details), &parsed))
		assert.Equal(t, "200", parsed["status"])

		deps, ok := parsed["dependencies"].([]interface{})
		require.True(t, ok)
		require.Len(t, deps, 2)
		assert.Equal(t, "store", deps[0].(map[string]interface{})["resource"])
		assert.Contains(t, deps[1].(map[string]interface{}), "dependencies")
	})

	t.Run("one unhealthy", func(t *testing.T) {
		status, details, err := health.CheckAll(ctx, false, []health.Check{
			{Name: "store", Check: staticCheck(http.StatusOK, "OK", nil)},
			{Name: "indexer", Check: staticCheck(http.StatusServiceUnavailable, "not running", nil)},
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Contains(t, details, "not running")
	})

	t.Run("error with OK status", func(t *testing.T) {
		status, details, err := health.CheckAll(ctx, true, []health.Check{
			{Name: "store", Check: staticCheck(http.StatusOK, "OK", errors.NewStorageUnavailableError("gone"))},
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Contains(t, details, "gone")
	})
}

func TestCheckHTTPServer(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/health", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		status, message, err := health.CheckHTTPServer(srv.URL+"/", "/health")(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, message, "listening and accepting requests")
	})

	t.Run("unhealthy", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		status, message, err := health.CheckHTTPServer(srv.URL, "/health")(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Contains(t, message, "returned status 503")
	})

	t.Run("not listening", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		address := srv.URL
		srv.Close()

		status, message, err := health.CheckHTTPServer(address, "/health")(ctx, false)
		require.Error(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, status)
		assert.Contains(t, message, "not accepting connections")
	})
}
