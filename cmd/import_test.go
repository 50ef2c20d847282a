package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadcheck/internal/model"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leads.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadLeadCSV(t *testing.T) {
	path := writeCSV(t, `Name,Phone,City,State,Website_URL
Summit Plumbing,(512) 555-0134,Austin,TX,summitplumbingatx.com
Hill Country Tacos,,Dripping Springs,TX,
`)

	businesses, err := readLeadCSV(path)
	require.NoError(t, err)
	require.Len(t, businesses, 2)

	first := businesses[0]
	assert.Equal(t, "Summit Plumbing", first.Name)
	assert.Equal(t, "(512) 555-0134", first.Phone)
	assert.Equal(t, model.StateNeedsDiscovery, first.Status)
	assert.NotEmpty(t, first.ID, "missing ids are generated")
	require.NotNil(t, first.WebsiteURL)
	assert.Equal(t, "summitplumbingatx.com", *first.WebsiteURL)

	assert.Nil(t, businesses[1].WebsiteURL, "empty website column stays nil")
}

func TestReadLeadCSV_SkipsNamelessRows(t *testing.T) {
	path := writeCSV(t, `name,city
Summit Plumbing,Austin
,Dallas
`)

	businesses, err := readLeadCSV(path)
	require.NoError(t, err)
	assert.Len(t, businesses, 1)
}

func TestReadLeadCSV_MissingNameColumn(t *testing.T) {
	path := writeCSV(t, `city,state
Austin,TX
`)

	_, err := readLeadCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name")
}
