package postgres

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"

	"aliasmail/backend/internal/storage"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	mysqlDuplicateEntry   = 1062
	mysqlNoReferencedRow  = 1452
)

// uniqueViolation 判断错误是否为唯一约束冲突，返回约束描述
//
// PostgreSQL 返回约束名，MySQL 返回带索引名的消息，SQLite 返回冲突的列名。
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName, true
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		// Duplicate entry '...' for key 'contacts.idx_contacts_reply_email'
		if i := strings.LastIndex(myErr.Message, "for key "); i >= 0 {
			return myErr.Message[i:], true
		}
		return myErr.Message, true
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return liteErr.Error(), true
	}

	return "", false
}

// foreignKeyViolation 判断错误是否为外键约束失败
func foreignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgForeignKeyViolation
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlNoReferencedRow
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return false
}

// contactError 将联系人表的约束冲突映射为存储层错误，外键失败说明别名已被删除
func contactError(err error) error {
	if errors.Is(err, storage.ErrAliasNotFound) || foreignKeyViolation(err) {
		return storage.ErrAliasNotFound
	}
	constraint, ok := uniqueViolation(err)
	if !ok {
		return err
	}
	if strings.Contains(constraint, "idx_contacts_reply_email") || strings.Contains(constraint, "contacts.reply_email") {
		return storage.ErrReplyEmailExists
	}
	return storage.ErrContactExists
}

// uniqueError 唯一约束冲突时返回 sentinel，否则原样返回
func uniqueError(err, sentinel error) error {
	if _, ok := uniqueViolation(err); ok {
		return sentinel
	}
	return err
}
