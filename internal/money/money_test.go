package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    int64
		wantErr bool
	}{
		{name: "integer", text: "100", want: 10000},
		{name: "dot separator", text: "12.5", want: 1250},
		{name: "comma separator", text: "12,5", want: 1250},
		{name: "two fraction digits", text: "0.05", want: 5},
		{name: "comma with two digits", text: "3,75", want: 375},
		{name: "surrounding spaces", text: " 40 ", want: 4000},
		{name: "leading dot", text: ".5", want: 50},
		{name: "empty", text: "", wantErr: true},
		{name: "not a number", text: "сто", wantErr: true},
		{name: "zero", text: "0", wantErr: true},
		{name: "zero with fraction", text: "0.00", wantErr: true},
		{name: "negative", text: "-5", wantErr: true},
		{name: "three fraction digits", text: "1.234", wantErr: true},
		{name: "two separators", text: "1.2.3", wantErr: true},
		{name: "bare separator", text: ",", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAmount(tt.text)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseSignedAmount(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    int64
		wantErr bool
	}{
		{name: "positive", text: "50", want: 5000},
		{name: "negative", text: "-50", want: -5000},
		{name: "negative fraction", text: "-0,5", want: -50},
		{name: "zero", text: "0", wantErr: true},
		{name: "minus only", text: "-", wantErr: true},
		{name: "double minus", text: "--5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSignedAmount(tt.text)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "40", FormatCents(4000))
	assert.Equal(t, "12.50", FormatCents(1250))
	assert.Equal(t, "0.05", FormatCents(5))
	assert.Equal(t, "-3.75", FormatCents(-375))
	assert.Equal(t, "0", FormatCents(0))
}
