package repomanager

import (
	"context"
	"database/sql"

	"github.com/vkarpenko/filevault/internal/dbx"
	"github.com/vkarpenko/filevault/internal/server/repositories/files"
	"github.com/vkarpenko/filevault/internal/server/repositories/grants"
	"github.com/vkarpenko/filevault/internal/server/repositories/principals"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Principals(db dbx.DBTX) principals.Repository
	Files(db dbx.DBTX) files.Repository
	Grants(db dbx.DBTX) grants.Repository
}
