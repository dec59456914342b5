package models

import "time"

// UserSession is the API session bound to a connected wallet address.
type UserSession struct {
	Address      string    `json:"address"`
	SessionID    string    `json:"session_id"`
	ChainID      int64     `json:"chain_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
}
