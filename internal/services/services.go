// Package services holds the application services. Each service owns its
// SQL, built with squirrel against the shared pgx pool; live-connection
// fan-out goes through the registry in internal/pool.
package services

import (
	"github.com/Masterminds/squirrel"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
