package taskmanager

import "testing"

func TestRouterClassify(t *testing.T) {
	router := NewRouter()

	cases := []struct {
		analysis string
		want     Route
	}{
		{"swap 1 ETH for USDC", RouteExecutor},
		{"Transfer 50 USDC to the treasury wallet", RouteExecutor},
		{"bridge funds to Base before fees rise", RouteExecutor},
		{"stake idle ETH with the usual validator", RouteExecutor},
		{"monitor whale wallets for unusual activity", RouteObserver},
		{"summarize today's market sentiment", RouteObserver},
		{"", RouteObserver},
	}

	for _, tc := range cases {
		decision := router.Classify(tc.analysis)
		if decision.Route != tc.want {
			t.Fatalf("Classify(%q) = %s, want %s", tc.analysis, decision.Route, tc.want)
		}
		if tc.want == RouteExecutor && decision.Keyword == "" {
			t.Fatalf("Classify(%q) missing matched keyword", tc.analysis)
		}
	}
}
