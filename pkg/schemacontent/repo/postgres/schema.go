package postgres

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/tendant/schema-content/pkg/schemacontent"
)

func createTableSQL(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id             UUID        NOT NULL,
			app_id         UUID        NOT NULL,
			schema_id      UUID        NOT NULL,
			version        BIGINT      NOT NULL,
			status         TEXT        NOT NULL,
			is_latest      BOOLEAN     NOT NULL DEFAULT false,
			last_modified  TIMESTAMPTZ NOT NULL,
			referenced_ids UUID[]      NOT NULL DEFAULT '{}',
			data           JSONB       NOT NULL DEFAULT '{}',
			data_text      TEXT        NOT NULL DEFAULT '',
			PRIMARY KEY (app_id, id, version)
		)`, table)
}

// createIndexSQL renders one required index. Array and text keys use GIN.
func createIndexSQL(table string, idx schemacontent.IndexSpec) (string, error) {
	if len(idx.Keys) == 0 {
		return "", errors.Newf("index %s has no keys", idx.Name)
	}
	name := strings.Trim(table, `"`) + "_" + idx.Name

	if idx.Text {
		return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (%s)", name, table, textVector), nil
	}
	if len(idx.Keys) == 1 && idx.Keys[0].Column == schemacontent.ColumnReferencedIDs {
		return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (referenced_ids)", name, table), nil
	}

	keys := make([]string, 0, len(idx.Keys))
	for _, k := range idx.Keys {
		col, ok := systemColumns[k.Column]
		if !ok {
			return "", errors.Newf("index %s: unknown column %q", idx.Name, k.Column)
		}
		if k.Descending {
			col += " DESC"
		}
		keys = append(keys, col)
	}
	// Every lookup is scoped to an app.
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (app_id, %s)", name, table, strings.Join(keys, ", ")), nil
}
