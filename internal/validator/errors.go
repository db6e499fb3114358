package validator

import "errors"

var errThresholdOrder = errors.New("borderline threshold must be below the accept threshold within [0,1]")
