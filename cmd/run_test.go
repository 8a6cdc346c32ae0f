package cmd

import (
	"testing"

	"lingorelay/pkg/config"
)

func TestPairKeys(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Pairs: config.ParsePairs("zh-tw:vi,vi:zh-tw")}
	if got := pairKeys(cfg); got != "zh-tw:vi,vi:zh-tw" {
		t.Fatalf("pairKeys = %q", got)
	}

	if got := pairKeys(&config.Config{}); got != "" {
		t.Fatalf("pairKeys on empty config = %q", got)
	}
}
