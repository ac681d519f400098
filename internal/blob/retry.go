package blob

import (
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// isTransientAzureError reports whether err is worth retrying: a redirect,
// a server error, or 429 Too Many Requests. An error the SDK didn't wrap as
// a ResponseError (e.g. a connection reset) is treated as transient too; any
// other HTTP status is not.
func isTransientAzureError(err error) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return true
	}
	status := respErr.StatusCode
	return status/100 == 3 || status/100 == 5 || status == http.StatusTooManyRequests
}
