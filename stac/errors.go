package stac

import "fmt"

// ParamError reports an invalid search or request parameter. Handlers map
// it to 400 Bad Request.
type ParamError struct {
	Param string
	Msg   string
}

func (e *ParamError) Error() string {
	if e.Param == "" {
		return e.Msg
	}
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Msg)
}

func paramErrorf(param, format string, args ...any) error {
	return &ParamError{Param: param, Msg: fmt.Sprintf(format, args...)}
}
