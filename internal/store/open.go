package store

import (
	"errors"
	"strings"

	"courier/pkg/logx"
)

// Open initializes the backend selected by the DSN scheme. The choice is
// made once at startup; there is no runtime switching.
func Open(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage dsn is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	codec, err := newFieldCodec(cfg.EncryptionKey, log)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return openPostgres(cfg, codec, log)
	}
	return openSQLite(cfg, codec, log)
}
