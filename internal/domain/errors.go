package domain

import "github.com/zeebo/errs"

var (
	ErrConnection       = errs.Class("connection")
	ErrDatabaseNotFound = errs.Class("database not found")
	ErrQuery            = errs.Class("query")
	ErrIO               = errs.Class("io")
	ErrUpload           = errs.Class("upload")
	ErrDirectory        = errs.Class("directory")
	ErrConfig           = errs.Class("config")
)
