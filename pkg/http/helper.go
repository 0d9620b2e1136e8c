package http

import (
	"net/http"
	"strconv"

	"labreserve/pkg/config"
	apperrors "labreserve/pkg/errors"
)

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid limit parameter: " + s)
		}
		limit = v
	}

	var offset int64
	if s := query.Get("offset"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid offset parameter: " + s)
		}
		offset = v
	}

	return config.NormalizePaginationLimit(limit), config.NormalizeOffset(offset), nil
}

// Requester identifies the authenticated caller. The authentication layer in
// front of this service is trusted to set both headers; the core performs no
// credential checks of its own.
type Requester struct {
	ID   string
	Role string
}

func ExtractRequester(r *http.Request) (Requester, error) {
	req := Requester{
		ID:   r.Header.Get("X-Requester-Id"),
		Role: r.Header.Get("X-Requester-Role"),
	}
	if req.ID == "" || req.Role == "" {
		return Requester{}, apperrors.InvalidInput("missing requester identity headers")
	}
	switch req.Role {
	case "admin", "faculty", "student":
	default:
		return Requester{}, apperrors.InvalidInput("unknown requester role: " + req.Role)
	}
	return req, nil
}
