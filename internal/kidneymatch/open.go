package kidneymatch

import (
	"fmt"

	"github.com/kidney-match-server/internal/domain"
)

// Open returns the store selected by config. databaseURL is used by the postgres driver.
func Open(config domain.MatchStoreConfig, databaseURL string) (Store, error) {
	switch config.Driver {
	case "", "postgres":
		return NewPostgresStoreFromURL(databaseURL)
	case "sqlite":
		return NewSQLiteStore(config.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown match store driver %q", config.Driver)
	}
}
