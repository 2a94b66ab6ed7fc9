package blobstore

import (
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
)

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusPreconditionFailed
	}
	return false
}
