package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type bucketStub struct{ err error }

func (b bucketStub) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, b.err
}

func serveHealth(t *testing.T, hc *HealthChecker, path string) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	switch path {
	case "/health/ready":
		hc.HandleReadiness(rec, req)
	case "/health/live":
		hc.HandleLiveness(rec, req)
	default:
		hc.HandleHealth(rec, req)
	}
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealth_NothingConfigured(t *testing.T) {
	hc := NewHealthChecker(HealthDeps{Sessions: func() int { return 3 }})

	code, body := serveHealth(t, hc, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(3), body["sessions"])
	checks := body["checks"].(map[string]interface{})
	assert.Len(t, checks, 4)
	assert.Equal(t, notConfigured, checks["redis"].(map[string]interface{})["message"])
}

func TestHealth_AllUp(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	hc := NewHealthChecker(HealthDeps{
		DB:       db,
		Redis:    rdb,
		S3:       bucketStub{},
		S3Bucket: "lists",
		Backend:  pingerFunc(func(context.Context) error { return nil }),
	})

	code, body := serveHealth(t, hc, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	checks := body["checks"].(map[string]interface{})
	for _, name := range []string{"database", "redis", "s3", "backend"} {
		assert.Equal(t, "up", checks[name].(map[string]interface{})["status"], name)
	}
	assert.Equal(t, `bucket "lists" accessible`, checks["s3"].(map[string]interface{})["message"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealth_BackendDownIsUnhealthy(t *testing.T) {
	hc := NewHealthChecker(HealthDeps{
		Backend: pingerFunc(func(context.Context) error { return errors.New("connection refused") }),
	})

	code, body := serveHealth(t, hc, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, false, body["ready"])
	assert.Equal(t, "unhealthy", body["status"])

	code, body = serveHealth(t, hc, "/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alive", body["status"])
}

func TestHealth_BucketDownIsDegraded(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	hc := NewHealthChecker(HealthDeps{
		Redis:    rdb,
		S3:       bucketStub{err: errors.New("forbidden")},
		S3Bucket: "lists",
	})

	code, body := serveHealth(t, hc, "/health/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body["status"])
}

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "42s", formatUptime(42e9))
	assert.Equal(t, "1h 0m 5s", formatUptime(3605e9))
}
