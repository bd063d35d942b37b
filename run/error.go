package run

import "strings"

// errorList wraps errors of multiple failed partitions.
type errorList []error

func (e errorList) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Unwrap allows to match any of listed errors.
func (e errorList) Unwrap() []error {
	return e
}

// ret returns untyped nil if error is list is empty.
func (e errorList) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
