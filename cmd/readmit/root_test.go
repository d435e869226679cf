package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExplicitSettings(t *testing.T) {
	var grouping, out string
	var sources []string
	cmd := &cobra.Command{Use: "analyze"}
	cmd.Flags().StringVar(&grouping, "grouping", "state_sex_year", "")
	cmd.Flags().StringVar(&out, "out", "", "")
	cmd.Flags().StringSliceVar(&sources, "source", nil, "")

	require.NoError(t, cmd.ParseFlags([]string{"--grouping", "state", "--out", "rates.parquet"}))
	assert.Equal(t, []string{"grouping"}, explicitSettings(cmd))

	require.NoError(t, cmd.ParseFlags([]string{"--source", "claims"}))
	assert.ElementsMatch(t, []string{"grouping", "sources"}, explicitSettings(cmd))
}
