package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"taskboard-service/internal/authz"
	"taskboard-service/internal/middleware"
	"taskboard-service/internal/model"
	"taskboard-service/pkg/config"
	"taskboard-service/pkg/database"
	"taskboard-service/pkg/jwtutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func uintPtr(v uint) *uint {
	return &v
}

func superAdminCaller() authz.Caller {
	return authz.Caller{UserID: 1, Email: "root@platform.test", Role: model.RoleSuperAdmin}
}

func tenantAdminCaller(tenantID uint) authz.Caller {
	return authz.Caller{UserID: 2, Email: "admin@acme.test", TenantID: uintPtr(tenantID), Role: model.RoleTenantAdmin}
}

func memberCaller(tenantID uint) authz.Caller {
	return authz.Caller{UserID: 3, Email: "member@acme.test", TenantID: uintPtr(tenantID), Role: model.RoleUser}
}

// setupMockDB swaps the global DB for a sqlmock-backed one for the duration of
// the test.
func setupMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 db,
		PreferSimpleProtocol: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	prev := database.DB
	database.DB = gdb
	t.Cleanup(func() {
		database.DB = prev
		db.Close()
	})

	return mock
}

type requestOptions struct {
	method string
	body   string
	params map[string]string
}

// newHandlerContext builds an echo context carrying the given caller, the way
// the auth middleware would have left it.
func newHandlerContext(t *testing.T, caller *authz.Caller, opts requestOptions) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	method := opts.method
	if method == "" {
		method = http.MethodGet
	}

	var req *http.Request
	if opts.body != "" {
		req = httptest.NewRequest(method, "/", strings.NewReader(opts.body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, "/", nil)
	}

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	if len(opts.params) > 0 {
		names := make([]string, 0, len(opts.params))
		values := make([]string, 0, len(opts.params))
		for name, value := range opts.params {
			names = append(names, name)
			values = append(values, value)
		}
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	if caller != nil {
		c.Set(middleware.CallerKey, *caller)
	}

	return c, rec
}

// decodeResponse unmarshals the uniform envelope from a recorded response.
func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// uniqueViolation fabricates the Postgres duplicate-key error the driver
// would surface on a unique index conflict.
func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

func testJWTUtil() *jwtutil.JWTUtil {
	return jwtutil.NewJWTUtil(&config.JWTConfig{
		SigningKey:      "handler-test-key",
		ExpirationHours: 1,
	})
}
