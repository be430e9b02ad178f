package handler

import (
	"errors"

	"taskboard-service/internal/authz"
	"taskboard-service/internal/middleware"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
)

// Response is the uniform envelope for every endpoint.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func respondData(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, Response{Success: true, Message: message, Data: data})
}

func respondError(c echo.Context, status int, message string) error {
	return c.JSON(status, Response{Success: false, Message: message})
}

// currentCaller reads the authenticated caller set by the auth middleware.
func currentCaller(c echo.Context) (authz.Caller, bool) {
	return middleware.CallerFromContext(c)
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation (SQLSTATE 23505), used to turn duplicate subdomains/emails
// into 409s.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
