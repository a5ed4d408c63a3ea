package service

import (
	"regexp"

	pkgerrors "ctfoj/pkg/errors"
)

// uid: 1-64 chars of letters, digits, dot, underscore, hyphen or @.
var uidPattern = regexp.MustCompile(`^[a-zA-Z0-9_.@-]{1,64}$`)

// Password: 1-128 printable ASCII chars.
var passwordPattern = regexp.MustCompile(`^[\x20-\x7E]{1,128}$`)

// Team id: 1-64 chars of letters, digits, "_", "." or "-".
var teamPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)

func validateUID(uid string) error {
	if !uidPattern.MatchString(uid) {
		return pkgerrors.ValidationError("uid", "invalid")
	}
	return nil
}

func validatePassword(password string) error {
	if !passwordPattern.MatchString(password) {
		return pkgerrors.ValidationError("password", "invalid")
	}
	return nil
}

func validateTeamID(tid string) error {
	if !teamPattern.MatchString(tid) {
		return pkgerrors.ValidationError("team", "invalid")
	}
	return nil
}
