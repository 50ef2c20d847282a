package main

import (
	"encoding/csv"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadcheck/internal/model"
)

var importCSVPath string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import business leads from CSV",
	Long:  "Loads leads into the businesses table. Expected columns: name, phone, address, city, state, country, website_url; an id column is optional. New rows start in NEEDS_DISCOVERY.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		businesses, err := readLeadCSV(importCSVPath)
		if err != nil {
			return err
		}
		if len(businesses) == 0 {
			zap.L().Warn("no rows found in csv", zap.String("csv", importCSVPath))
			return nil
		}

		inserted, err := st.BulkInsertBusinesses(ctx, businesses)
		if err != nil {
			return eris.Wrap(err, "import csv")
		}

		zap.L().Info("import complete",
			zap.Int64("rows", inserted),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

// readLeadCSV parses a lead CSV into businesses. Header names are matched
// case-insensitively; rows without a name are skipped with a warning.
func readLeadCSV(path string) ([]model.Business, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open csv %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "read csv header")
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["name"]; !ok {
		return nil, eris.New("csv is missing required column: name")
	}

	field := func(record []string, name string) string {
		idx, ok := col[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	var businesses []model.Business
	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, eris.Wrapf(err, "read csv line %d", line)
		}

		name := field(record, "name")
		if name == "" {
			zap.L().Warn("skipping row without name", zap.Int("line", line))
			continue
		}

		b := model.Business{
			ID:      field(record, "id"),
			Name:    name,
			Phone:   field(record, "phone"),
			Address: field(record, "address"),
			City:    field(record, "city"),
			State:   field(record, "state"),
			Country: field(record, "country"),
			Status:  model.StateNeedsDiscovery,
		}
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if url := field(record, "website_url"); url != "" {
			b.WebsiteURL = &url
		}
		businesses = append(businesses, b)
	}
	return businesses, nil
}

func init() {
	importCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	_ = importCmd.MarkFlagRequired("csv")
	rootCmd.AddCommand(importCmd)
}
