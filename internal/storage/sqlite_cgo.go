//go:build cgo

package storage

import (
	"database/sql"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

// openSQLite registers sqlite-vec so downstream search can run vec_distance_cosine
// over the stored blobs on the same connection.
func openSQLite(path string) (*sql.DB, error) {
	sqlite_vec.Auto()
	return sql.Open("sqlite3", "file:"+path+"?_txlock=immediate&_busy_timeout=5000&_foreign_keys=on")
}

func serializeVector(v []float32) ([]byte, error) {
	return sqlite_vec.SerializeFloat32(v)
}
