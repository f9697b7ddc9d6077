package taxonomy

import "errors"

// ErrSourceUnavailable is returned when the raw taxonomy material could not be
// retrieved (network, authentication, missing bundle, timeout).
var ErrSourceUnavailable = errors.New("taxonomy: source unavailable")

// ErrParse is returned when raw material was retrieved but could not be
// decoded into category and application tables.
var ErrParse = errors.New("taxonomy: parse error")
