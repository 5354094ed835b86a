package repository

import "errors"

var (
	// 対象レコードなし
	ErrNotFound = errors.New("not found")
	// 一意制約違反
	ErrDuplicate = errors.New("duplicate")
	// 条件付き更新で、読んだ時点から状態が変わっていた
	ErrConflict = errors.New("conflict")
)
