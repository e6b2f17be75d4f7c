package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tendant/schema-content/pkg/schemacontent"
	"github.com/tendant/schema-content/pkg/schemacontent/admin"
	"github.com/tendant/schema-content/pkg/schemacontent/query"
)

// scopeFlags are the flags shared by commands that read one app schema.
type scopeFlags struct {
	appID    string
	schemaID string
	statuses []string
	filter   string
	orderBy  string
	search   string
	jsonOut  bool
}

func (f *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.appID, "app", "", "app id (required)")
	cmd.Flags().StringVar(&f.schemaID, "schema", "", "schema id (required)")
	cmd.Flags().StringSliceVar(&f.statuses, "status", nil, "statuses to include (Draft, Published, Archived)")
	cmd.Flags().StringVar(&f.filter, "filter", "", "OData $filter expression")
	cmd.Flags().StringVar(&f.orderBy, "orderby", "", "OData $orderby expression")
	cmd.Flags().StringVar(&f.search, "search", "", "full-text search")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("app")
	_ = cmd.MarkFlagRequired("schema")
}

func (f *scopeFlags) filters() (admin.ContentFilters, error) {
	appID, err := uuid.Parse(f.appID)
	if err != nil {
		return admin.ContentFilters{}, fmt.Errorf("invalid --app: %w", err)
	}
	schemaID, err := uuid.Parse(f.schemaID)
	if err != nil {
		return admin.ContentFilters{}, fmt.Errorf("invalid --schema: %w", err)
	}

	filters := admin.ContentFilters{AppID: appID, SchemaID: schemaID, Search: f.search}
	for _, s := range f.statuses {
		status := schemacontent.Status(s)
		if !status.Valid() {
			return admin.ContentFilters{}, fmt.Errorf("invalid --status %q", s)
		}
		filters.Statuses = append(filters.Statuses, status)
	}
	if f.filter != "" {
		if filters.Filter, err = query.ParseFilter(f.filter); err != nil {
			return admin.ContentFilters{}, err
		}
	}
	if f.orderBy != "" {
		if filters.Sort, err = query.ParseOrderBy(f.orderBy); err != nil {
			return admin.ContentFilters{}, err
		}
	}
	return filters, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
