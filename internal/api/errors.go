package api

import (
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gigroom/gigroom/internal/apperr"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// degradedHeader is set when a write committed but its realtime fan-out
// was rejected by the broadcast medium.
const degradedHeader = "X-Realtime-Degraded"

// respondError writes err as a JSON error body with the status matching
// its kind. Unclassified errors are logged and reported as 500.
func respondError(c *gin.Context, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		slog.Error("api: request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error."})
		return
	}
	body := gin.H{"detail": ae.Detail}
	if len(ae.Fields) > 0 {
		body["errors"] = ae.Fields
	}
	status := http.StatusInternalServerError
	switch ae.Kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindNotFound:
		status = http.StatusNotFound
	}
	c.AbortWithStatusJSON(status, body)
}

// idParam parses a positive integer path parameter. A malformed value is
// reported as not found, matching an int route converter.
func idParam(c *gin.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		return 0, apperr.NotFound("Not found.")
	}
	return uint(v), nil
}

// bindJSON decodes the request body into dst, mapping decode failures to
// a validation error.
func bindJSON(c *gin.Context, dst any) error {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			msg := fe.Error()
			if fe.Tag() == "required" {
				msg = "This field is required."
			}
			fields[jsonName(dst, fe.StructField())] = msg
		}
		return apperr.Validation("Invalid request body.", fields)
	}
	return apperr.Validation("Malformed request body.", map[string]string{"body": err.Error()})
}

// jsonName returns the json key of field in the struct dst points to.
func jsonName(dst any, field string) string {
	t := reflect.TypeOf(dst)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if f, ok := t.FieldByName(field); ok {
		if name, _, _ := strings.Cut(f.Tag.Get("json"), ","); name != "" && name != "-" {
			return name
		}
	}
	return field
}
