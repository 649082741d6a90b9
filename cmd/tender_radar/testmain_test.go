package main

import (
	"os"
	"testing"
)

// TestMain clears provider credentials so tests never reach a real model.
func TestMain(m *testing.M) {
	for _, key := range []string{"GEMINI_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "LLM_PROVIDER", "DATABASE_URL", "TELEGRAM_BOT_TOKEN"} {
		_ = os.Unsetenv(key)
	}
	os.Exit(m.Run())
}
