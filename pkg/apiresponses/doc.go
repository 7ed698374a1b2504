// Package apiresponses provides standardized HTTP API response helpers
// (error, unauthorized, bad-gateway, etc.) shared by the credsvc handlers.
package apiresponses
