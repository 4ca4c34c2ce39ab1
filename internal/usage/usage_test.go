package usage

import "testing"

func TestEstimateTokensWhitespaceHeuristic(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"", 0},
		{"hello", 2},       // ceil(1 * 1.3)
		{"hello world", 3}, // ceil(2 * 1.3)
		{"  leading  and trailing  ", 3},
	}
	for _, c := range cases {
		if got := EstimateTokens(c.text); got != c.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", c.text, got, c.want)
		}
	}
}

func TestPriceTableCostMicroUSD(t *testing.T) {
	table := PriceTable{
		"gpt-demo": {InputPerMillion: 3, OutputPerMillion: 15},
	}

	got := table.CostMicroUSD("gpt-demo", 1_000_000, 0)
	if got != 3_000_000 {
		t.Errorf("input cost = %d, want 3000000", got)
	}

	got = table.CostMicroUSD("gpt-demo", 0, 1_000_000)
	if got != 15_000_000 {
		t.Errorf("output cost = %d, want 15000000", got)
	}

	if got := table.CostMicroUSD("unknown-model", 1_000_000, 1_000_000); got != 0 {
		t.Errorf("unpriced model cost = %d, want 0", got)
	}
}

func TestFormatUSDAndTokenCount(t *testing.T) {
	if got := FormatUSD(0); got != "$0.00" {
		t.Errorf("FormatUSD(0) = %q", got)
	}
	if got := FormatUSD(12_300); got != "$0.01" {
		t.Errorf("FormatUSD(12300) = %q, want $0.01", got)
	}
	if got := FormatUSD(3_000); got != "$0.0030" {
		t.Errorf("FormatUSD(3000) = %q, want $0.0030", got)
	}
	if got := FormatTokenCount(1_500); got != "1.5k" {
		t.Errorf("FormatTokenCount(1500) = %q", got)
	}
}
