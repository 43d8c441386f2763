package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"atsboost/internal/config"
	"atsboost/internal/errors"
	"atsboost/internal/webhook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, cfg *config.Config, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	require.NoError(t, Execute(context.Background(), cfg, errors.NewNopLogger()))
	return out.String()
}

func TestWebhookSignCommand(t *testing.T) {
	body := []byte(`{"event":"payment.succeeded","data":{"id":"ch_1","amount":10000,"status":"succeeded"}}`)
	bodyFile := filepath.Join(t.TempDir(), "body.json")
	require.NoError(t, os.WriteFile(bodyFile, body, 0600))

	cfg := &config.Config{Payments: config.PaymentsConfig{
		WebhookSecret:   "whsec_cli",
		SignatureHeader: "webhook-signature",
		TimestampHeader: "webhook-timestamp",
	}}

	out := runCLI(t, cfg, "webhook", "sign", "--body-file", bodyFile, "--timestamp", "1700000000")

	assert.Contains(t, out, "webhook-timestamp: 1700000000\n")
	assert.Contains(t, out, "webhook-signature: "+webhook.Sign("whsec_cli", "1700000000", body)+"\n")
}

func TestVersionCommand(t *testing.T) {
	out := runCLI(t, &config.Config{}, "version")
	assert.Contains(t, out, "atsboost version "+Version)
}
