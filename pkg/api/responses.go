package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// ok writes a success envelope (spec.md §6 "Success operations return
// {success: true, ...}"), merging fields into the response body alongside
// `success`.
func ok(c *echo.Context, fields map[string]any) error {
	body := map[string]any{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	return c.JSON(http.StatusOK, body)
}

// scheduled is the wait_for_response=false reply: fire-and-forget
// operations return an unconditional {success: true, scheduled: true}
// without waiting on extractor completion (spec.md §7 "Fire-and-forget
// always returns None; errors are silent by design").
func scheduled(c *echo.Context) error {
	return ok(c, map[string]any{"scheduled": true})
}

// failResponse is the failure envelope body (spec.md §6 "Failure returns
// {success: false, message, code}").
type failResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
}
