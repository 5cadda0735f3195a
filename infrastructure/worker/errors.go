package worker

import "errors"

// ErrStorageUnavailable wraps blob store failures during processing. It is
// retryable: the store may come back before the next attempt.
var ErrStorageUnavailable = errors.New("blob storage unavailable")
