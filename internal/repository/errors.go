package repository

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
)

const (
	// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
	uniqueViolation = "23505"
	// invalidTextRepresentation はUUID列などに解釈できない値を渡した場合のSQLSTATE。
	invalidTextRepresentation = "22P02"
)

var (
	// ErrConflict は一意制約違反を表す。*ConflictError はこのエラーとして判定される。
	ErrConflict = errors.New("unique constraint violation")

	// ErrSubdomainExhausted はデフォルトサブドメインの全候補が使用済みであることを表す。
	ErrSubdomainExhausted = errors.New("no subdomain candidate available")
)

// ConflictError は違反した制約名を保持する一意制約違反エラー。
type ConflictError struct {
	Constraint string
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *ConflictError) Error() string {
	return fmt.Sprintf("unique constraint %q violated: %v", e.Constraint, e.Err)
}

// Is は errors.Is(err, ErrConflict) を満たす。
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Unwrap は元のドライバーエラーを返す。
func (e *ConflictError) Unwrap() error {
	return e.Err
}

// translateError はドライバーエラーをリポジトリのエラーに変換する。
// 一意制約違反以外はそのまま返す。
func translateError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return &ConflictError{Constraint: pqErr.Constraint, Err: err}
	}
	return err
}

// isInvalidKey はキー列の型に変換できない値で検索したエラーかを返す。
// そのような値に一致する行は存在しないため、呼び出し側は未検出として扱う。
func isInvalidKey(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == invalidTextRepresentation
}
