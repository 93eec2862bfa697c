package web

import "errors"

var ErrPanic = errors.New("panic while serving request")
