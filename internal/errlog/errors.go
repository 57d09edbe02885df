package errlog

import "codeberg.org/mutker/asusfanctl/internal/errors"

const (
	ErrInvalidPath = errors.ErrorCode("errlog_invalid_path")

	// Schema Errors
	ErrSchemaInitFailed       = errors.ErrorCode("errlog_schema_init_failed")
	ErrSchemaValidationFailed = errors.ErrorCode("errlog_schema_validation_failed")
	ErrSchemaMigrationFailed  = errors.ErrorCode("errlog_schema_migration_failed")

	// Storage Errors
	ErrStorageAccess = errors.ErrorCode("errlog_storage_access_failed")
	ErrStorageInit   = errors.ErrorCode("errlog_storage_init_failed")
	ErrStorageClose  = errors.ErrorCode("errlog_storage_close_failed")
)
