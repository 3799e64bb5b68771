package clickhouse

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// systemDatabases are never part of a schema fingerprint.
var systemDatabases = []string{"system", "INFORMATION_SCHEMA", "information_schema"}

// Fingerprint summarizes the user-visible schema of a server.
type Fingerprint struct {
	// Hash is an h1 hash over Objects.
	Hash string

	// Objects has one sorted entry per database and table, including its definition.
	Objects []string
}

// SchemaFingerprint captures every database and table outside the system
// databases and the given exclusions.
//
// Example usage:
//
//	before, err := client.SchemaFingerprint(ctx, "hermes")
//	// ... run migrations up and back down ...
//	after, err := client.SchemaFingerprint(ctx, "hermes")
//	if before.Hash != after.Hash {
//		fmt.Println(before.Diff(after))
//	}
func (c *Client) SchemaFingerprint(ctx context.Context, exclude ...string) (*Fingerprint, error) {
	skip := append(slices.Clone(systemDatabases), exclude...)

	var objects []string

	rows, err := c.conn.Query(ctx, "SELECT name, engine FROM system.databases WHERE NOT has(?, name) ORDER BY name", skip)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list databases")
	}

	for rows.Next() {
		var name, engine string
		if err := rows.Scan(&name, &engine); err != nil {
			_ = rows.Close()
			return nil, errors.Wrap(err, "failed to scan database")
		}
		objects = append(objects, fmt.Sprintf("database %s engine=%s", name, engine))
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list databases")
	}

	rows, err = c.conn.Query(ctx, `SELECT database, name, engine, create_table_query
FROM system.tables
WHERE NOT has(?, database) AND NOT is_temporary
ORDER BY database, name`, skip)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tables")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var db, name, engine, create string
		if err := rows.Scan(&db, &name, &engine, &create); err != nil {
			return nil, errors.Wrap(err, "failed to scan table")
		}
		objects = append(objects, fmt.Sprintf("table %s.%s engine=%s %s", db, name, engine, strings.Join(strings.Fields(create), " ")))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to list tables")
	}

	return NewFingerprint(objects), nil
}

// NewFingerprint builds a fingerprint from object descriptions.
func NewFingerprint(objects []string) *Fingerprint {
	sorted := slices.Clone(objects)
	slices.Sort(sorted)

	h := sha256.New()
	for _, o := range sorted {
		h.Write([]byte(o))
		h.Write([]byte{'\n'})
	}

	return &Fingerprint{
		Hash:    "h1:" + base64.StdEncoding.EncodeToString(h.Sum(nil)),
		Objects: sorted,
	}
}

// Equal reports whether both fingerprints describe the same schema.
func (f *Fingerprint) Equal(other *Fingerprint) bool {
	return other != nil && f.Hash == other.Hash
}

// Diff lists objects only present in f ("-") or only in other ("+").
func (f *Fingerprint) Diff(other *Fingerprint) []string {
	var out []string
	for _, o := range f.Objects {
		if _, found := slices.BinarySearch(other.Objects, o); !found {
			out = append(out, "- "+o)
		}
	}
	for _, o := range other.Objects {
		if _, found := slices.BinarySearch(f.Objects, o); !found {
			out = append(out, "+ "+o)
		}
	}
	return out
}
