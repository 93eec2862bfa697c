package memory

import "errors"

var (
	ErrTransactionIDNotFoundInCtx = errors.New("no memory transaction id found in ctx")
	ErrTransactionNotFound        = errors.New("memory transaction not found")
)
