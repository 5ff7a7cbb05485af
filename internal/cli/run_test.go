package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name    string
		record  []string
		want    []float64
		wantErr bool
	}{
		{name: "single column", record: []string{"1.5"}, want: []float64{1.5}},
		{name: "multiple columns", record: []string{"1", "-2.25", "3e2"}, want: []float64{1, -2.25, 300}},
		{name: "non numeric", record: []string{"1", "abc"}, wantErr: true},
		{name: "empty field", record: []string{""}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRecord(tt.record)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
