package db

import "errors"

// Sentinel errors for database operations.
var (
	ErrKeyNotFound = errors.New("db: key not found")
)

// Op constants name the failing statement or command for error context.
const (
	OpOpen     = "OPEN"
	OpMigrate  = "MIGRATE"
	OpBegin    = "BEGIN"
	OpCommit   = "COMMIT"
	OpExec     = "EXEC"
	OpQuery    = "QUERY"
	OpScan     = "SCAN"
	OpPing     = "PING"
	OpGet      = "GET"
	OpMGet     = "MGET"
	OpSet      = "SET"
	OpIncrBy   = "INCRBY"
	OpExpire   = "EXPIRE"
	OpInsert   = "INSERT"
	OpUpsert   = "UPSERT"
	OpDelete   = "DELETE"
	OpFTSProbe = "FTS5"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }
