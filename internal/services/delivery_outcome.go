package services

import (
	"strings"

	"github.com/tidwall/gjson"
)

// deliverySuccessMarkers lists every field the delivery gateway has used, across
// its API versions, to report a fulfilled order. Add new shapes here only.
var deliverySuccessMarkers = []struct {
	path  string
	match func(gjson.Result) bool
}{
	{path: "success", match: isTrue},
	{path: "Status", match: equals("successful")},
	{path: "status", match: equals("delivered")},
	{path: "status", match: equals("successful")},
}

// DeliveryVerdict is the normalized reading of a delivery gateway response.
type DeliveryVerdict struct {
	Success bool
	// Recognized is false when none of the known marker fields are present.
	Recognized bool
}

// DeliverySucceeded classifies a delivery gateway response. Only 2xx answers
// carrying one of the success markers count as delivered.
func DeliverySucceeded(httpStatus int, raw []byte) DeliveryVerdict {
	var verdict DeliveryVerdict
	if !gjson.ValidBytes(raw) {
		return verdict
	}

	for _, marker := range deliverySuccessMarkers {
		field := gjson.GetBytes(raw, marker.path)
		if !field.Exists() {
			continue
		}
		verdict.Recognized = true
		if marker.match(field) {
			verdict.Success = true
		}
	}

	if httpStatus < 200 || httpStatus >= 300 {
		verdict.Success = false
	}
	return verdict
}

func isTrue(r gjson.Result) bool {
	if r.Type == gjson.True {
		return true
	}
	return r.Type == gjson.String && strings.EqualFold(r.Str, "true")
}

func equals(want string) func(gjson.Result) bool {
	return func(r gjson.Result) bool {
		return r.Type == gjson.String && strings.EqualFold(strings.TrimSpace(r.Str), want)
	}
}
