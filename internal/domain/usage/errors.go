package usage

import "errors"

var ErrStatisticsNotFound = errors.New("usage statistics not found")
