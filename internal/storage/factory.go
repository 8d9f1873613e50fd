package storage

import (
	"fmt"

	"github.com/sis061/pilltime-sub000/internal"
	"github.com/sis061/pilltime-sub000/internal/config"
)

func NewStore(cfg *config.Config, logger internal.Logger) (Store, error) {
	switch cfg.DBType {
	case "file":
		return NewFileStorage(cfg.DataDir, logger)
	case "sqlite":
		return NewSQLiteStorage(cfg.SQLitePath, logger)
	case "postgres":
		return NewPostgresStorage(cfg.DBDSN, logger)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.DBType)
	}
}
