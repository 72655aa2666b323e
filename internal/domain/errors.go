package domain

import "errors"

// ErrBotNotFound is returned by bot stores when no bot matches the ID.
var ErrBotNotFound = errors.New("bot not found")
