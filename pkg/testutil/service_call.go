package testutil

import "time"

// ServiceCall records a service call for testing/verification
type ServiceCall struct {
	Timestamp   time.Time
	Domain      string
	Service     string
	ServiceData map[string]interface{}
}

// FilterServiceCalls filters service calls by domain and service
func FilterServiceCalls(calls []ServiceCall, domain, service string) []ServiceCall {
	var filtered []ServiceCall
	for _, call := range calls {
		if call.Domain == domain && call.Service == service {
			filtered = append(filtered, call)
		}
	}
	return filtered
}

// LastServiceCall returns the most recent matching call, or nil
func LastServiceCall(calls []ServiceCall, domain, service string) *ServiceCall {
	filtered := FilterServiceCalls(calls, domain, service)
	if len(filtered) == 0 {
		return nil
	}
	return &filtered[len(filtered)-1]
}
