package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/starford/postdesk/internal/apperr"
)

// describe turns an error into the line shown to the user.
func describe(err error) string {
	var ue usageError
	switch {
	case errors.As(err, &ue):
		return ue.Error()
	case apperr.IsAuth(err):
		return fmt.Sprintf("Sign-in failed (%v). Run \"postdesk login\" to try again.", err)
	case apperr.StatusCode(err) == http.StatusUnauthorized:
		return "The platform rejected your credentials. Run \"postdesk login\"."
	case apperr.StatusCode(err) == http.StatusForbidden:
		return "You are not allowed to do that on the platform."
	case apperr.StatusCode(err) != 0:
		return fmt.Sprintf("The platform returned an error: %v", err)
	case apperr.IsValidation(err):
		return fmt.Sprintf("The platform sent an unexpected response: %v", err)
	case errors.Is(err, apperr.ErrUnavailable):
		return "The platform could not be reached. Check your connection or use --offline."
	case errors.Is(err, apperr.ErrNotFound):
		return fmt.Sprintf("Not found: %v", err)
	default:
		return err.Error()
	}
}
