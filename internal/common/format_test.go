package common

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"0.0000037", "0.0(5)37"},
		{"0.0001", "0.0001"},
		{"0.00001", "0.0(4)1"},
		{"0.00000109", "0.0(5)109"},
		{"0.00000549", "0.0(5)549"},
		{"0.00011", "0.00011"},
		{"12.5", "12.5"},
		{"10.000", "10"},
		{"1.00000001", "1.00000001"},
		// округление до 10 знаков
		{"0.000000000049", "0"},
		{"0.00000000005", "0.0(9)1"},
		{"-0.0000037", "-0.0(5)37"},
		{"-12", "-12"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestFormatSigned(t *testing.T) {
	assert.Equal(t, "+10 HONEY", FormatSigned("HONEY", decimal.NewFromInt(10)))
	assert.Equal(t, "-12 USDT", FormatSigned("USDT", decimal.NewFromInt(-12)))
	assert.Equal(t, "0.0(5)37 WBTC", FormatAmount("WBTC", decimal.RequireFromString("0.0000037")))
}

func TestNormalizeAsset(t *testing.T) {
	assert.Equal(t, "WBTC", NormalizeAsset(" wbtc "))
	assert.Equal(t, "", NormalizeAsset("  "))
}
