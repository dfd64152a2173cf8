// Package domain defines the core data types shared across the
// miniaccounts server, token store, and admin surfaces.
package domain

// TokenRecord is one persisted account token.
type TokenRecord struct {
	Account string `json:"account"`
	Token   string `json:"token,omitempty"`
}

// Stats is a point-in-time view of the connection registry.
type Stats struct {
	Accounts    int `json:"accounts"`
	Connections int `json:"connections"`
	Pending     int `json:"pending_calls"`
}

// HealthResponse is the JSON body served by the health endpoints.
type HealthResponse struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	Prefix    string `json:"prefix,omitempty"`
	Stats
}

// ErrorResponse is the JSON body returned for structured HTTP errors.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
}
