package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/MJE43/digiwin/internal/clarity"
)

const (
	maxCallArgs  = 16
	maxArgLength = 1024
	maxPageLimit = 1000
)

// ValidateCallRequest validates a call body. Public calls need a sender;
// read-only calls default to the deployer.
func ValidateCallRequest(req *CallRequest, requireSender bool) error {
	if requireSender && strings.TrimSpace(req.Sender) == "" {
		return fmt.Errorf("sender is required")
	}
	if len(req.Args) > maxCallArgs {
		return fmt.Errorf("too many args (max %d)", maxCallArgs)
	}
	for i, a := range req.Args {
		if len(a) > maxArgLength {
			return fmt.Errorf("arg %d too long (max %d bytes)", i, maxArgLength)
		}
	}
	return nil
}

// ValidatePrincipal checks that s is a standard or contract principal
func ValidatePrincipal(s string) error {
	if s == "" {
		return fmt.Errorf("address is required")
	}
	if _, err := clarity.Parse("'" + s); err != nil {
		return fmt.Errorf("invalid principal %q", s)
	}
	return nil
}

// parseUintParam parses a decimal path parameter such as a game id
func parseUintParam(raw string) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimPrefix(raw, "u"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("must be an unsigned integer")
	}
	return n, nil
}

// parsePage reads limit and offset query parameters
func parsePage(r *http.Request) (limit, offset int, field string, err error) {
	q := r.URL.Query()
	limit = 50
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxPageLimit {
			return 0, 0, "limit", fmt.Errorf("limit must be between 1 and %d", maxPageLimit)
		}
	}
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, "offset", fmt.Errorf("offset must be >= 0")
		}
	}
	return limit, offset, "", nil
}
