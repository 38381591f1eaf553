package repository

import "errors"

// Sentinel errors shared by the Postgres and in-memory stores. The
// service layer matches on these with errors.Is and maps them to the
// response taxonomy.
var (
	ErrPolicyNotFound  = errors.New("policy not found")
	ErrClientNotFound  = errors.New("client not found")
	ErrPairNotFound    = errors.New("pair not found")
	ErrDuplicateClient = errors.New("client already exists")
	ErrDuplicatePair   = errors.New("pair already exists")
)
