package errors

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ErrStaleState 条件更新未命中：记录已不处于预期状态
var ErrStaleState = errors.New("记录状态已变化，条件更新未生效")

// ErrDuplicate 唯一约束冲突
var ErrDuplicate = errors.New("唯一约束冲突")

// PostgreSQL SQLSTATE
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// DuplicateError 携带约束名的唯一约束冲突
type DuplicateError struct {
	Constraint string
	Err        error
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("唯一约束冲突 (%s)", e.Constraint)
}

func (e *DuplicateError) Unwrap() error { return e.Err }

// Is 让 errors.Is(err, ErrDuplicate) 成立
func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// ErrForeignKey 外键约束冲突（引用的记录不存在）
var ErrForeignKey = errors.New("引用的记录不存在")

// TranslatePG 将 pgx 返回的约束类错误转换为存储层哨兵错误
// 其他错误原样返回
func TranslatePG(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return &DuplicateError{Constraint: pgErr.ConstraintName, Err: err}
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %s", ErrForeignKey, pgErr.ConstraintName)
	default:
		return err
	}
}

// ConstraintOf 返回唯一约束冲突的约束名，非唯一冲突返回空串
func ConstraintOf(err error) string {
	var dup *DuplicateError
	if errors.As(err, &dup) {
		return dup.Constraint
	}
	return ""
}
