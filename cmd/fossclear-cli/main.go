package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/fossclear/fossclear/internal/audit"
	"github.com/fossclear/fossclear/pkg/types"
)

const defaultAddr = "http://localhost:8080"

func main() {
	exitFn(run(os.Args, os.Stdout, os.Stderr))
}

var exitFn = os.Exit

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "apply":
		return handleApply(args[2:], stdout, stderr)
	case "history":
		return handleHistory(args[2:], stdout, stderr)
	case "status":
		return handleStatus(args[2:], stdout, stderr)
	case "verify":
		return handleVerify(args[2:], stdout, stderr)
	default:
		usage(stderr)
		return 2
	}
}

func handleApply(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("FOSSCLEAR_ADDR", defaultAddr), "FossClear API address")
	kind := fs.String("kind", "", "decision kind")
	skip := fs.String("skip", "", "skip option (none or noLicense)")
	jsonOut := fs.Bool("json", false, "print raw JSON response")
	token := fs.String("token", envOrDefault("FOSSCLEAR_TOKEN", os.Getenv("FOSSCLEAR_DEV_TOKEN")), "bearer token")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "apply requires <item_id>")
		fs.Usage()
		return 2
	}
	if *kind == "" {
		fmt.Fprintln(stderr, "apply requires --kind")
		fs.Usage()
		return 2
	}

	body, err := json.Marshal(types.ApplyDecisionRequest{
		TargetID:   fs.Arg(0),
		Kind:       *kind,
		SkipOption: *skip,
	})
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}

	respBody, status, err := httpPost(http.DefaultClient, *addr+"/v1/decisions", *token, body)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "apply failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}

	if *jsonOut {
		_, _ = stdout.Write(respBody)
		return 0
	}

	var payload types.ApplyDecisionResponse
	if err := json.Unmarshal(respBody, &payload); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}
	fmt.Fprintf(stdout, "applied=%d skipped=%d deactivated_findings=%d effective_skip=%s\n",
		payload.Applied, payload.Skipped, len(payload.DeactivatedFindings), payload.EffectiveSkip)
	return 0
}

func handleHistory(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("FOSSCLEAR_ADDR", defaultAddr), "FossClear API address")
	jsonOut := fs.Bool("json", false, "print raw JSON response")
	token := fs.String("token", envOrDefault("FOSSCLEAR_TOKEN", os.Getenv("FOSSCLEAR_DEV_TOKEN")), "bearer token")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "history requires <item_id>")
		fs.Usage()
		return 2
	}

	respBody, status, err := httpGet(http.DefaultClient, *addr+"/v1/items/"+fs.Arg(0)+"/history", *token)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "history failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}

	if *jsonOut {
		_, _ = stdout.Write(respBody)
		return 0
	}

	var payload types.HistoryResponse
	if err := json.Unmarshal(respBody, &payload); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}
	for _, entry := range payload.Entries {
		fmt.Fprintf(stdout, "seq=%d kind=%s created_at=%s event_id=%s\n", entry.Seq, entry.Kind, entry.CreatedAt, entry.EventID)
	}
	return 0
}

func handleStatus(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("FOSSCLEAR_ADDR", defaultAddr), "FossClear API address")
	jsonOut := fs.Bool("json", false, "print raw JSON response")
	token := fs.String("token", envOrDefault("FOSSCLEAR_TOKEN", os.Getenv("FOSSCLEAR_DEV_TOKEN")), "bearer token")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "status requires <upload_id>")
		fs.Usage()
		return 2
	}

	respBody, status, err := httpGet(http.DefaultClient, *addr+"/v1/uploads/"+fs.Arg(0)+"/status", *token)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "status failed: %s\n", strings.TrimSpace(string(respBody)))
		return 1
	}

	if *jsonOut {
		_, _ = stdout.Write(respBody)
		return 0
	}

	var payload types.UploadStatusResponse
	if err := json.Unmarshal(respBody, &payload); err != nil {
		fmt.Fprintln(stderr, "invalid response:", err)
		return 1
	}
	fmt.Fprintf(stdout, "grade=%s decided=%d undecided=%d\n", payload.Grade, payload.Decided, payload.Undecided)
	for _, reason := range payload.Reasons {
		fmt.Fprintf(stdout, "reason: %s\n", reason)
	}
	return 0
}

func handleVerify(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", envOrDefault("FOSSCLEAR_ADDR", defaultAddr), "FossClear API address")
	token := fs.String("token", envOrDefault("FOSSCLEAR_TOKEN", os.Getenv("FOSSCLEAR_DEV_TOKEN")), "bearer token")
	if err := fs.Parse(args); err != nil {
		fs.Usage()
		return 2
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "verify requires <item_id>")
		fs.Usage()
		return 2
	}
	itemID := fs.Arg(0)

	exportBody, status, err := httpGet(http.DefaultClient, *addr+"/v1/items/"+itemID+"/export", *token)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "export failed: %s\n", strings.TrimSpace(string(exportBody)))
		return 1
	}

	var export types.ExportResponse
	if err := json.Unmarshal(exportBody, &export); err != nil {
		fmt.Fprintln(stderr, "invalid export response:", err)
		return 1
	}

	keyBody, status, err := httpGet(http.DefaultClient, *addr+"/v1/signing-key", *token)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return 1
	}
	if status != http.StatusOK {
		fmt.Fprintf(stderr, "signing key fetch failed: %s\n", strings.TrimSpace(string(keyBody)))
		return 1
	}

	var key struct {
		KeyID     string `json:"key_id"`
		PublicKey []byte `json:"public_key"`
	}
	if err := json.Unmarshal(keyBody, &key); err != nil {
		fmt.Fprintln(stderr, "invalid signing key response:", err)
		return 1
	}

	stored := audit.StoredExport{
		ExportID:   export.ExportID,
		ItemID:     export.ItemID,
		BodyJSON:   export.Body,
		BodyDigest: export.Digest,
		KeyID:      export.KeyID,
		Sig:        export.Sig,
	}
	if err := audit.VerifyExport(stored, ed25519.PublicKey(key.PublicKey)); err != nil {
		fmt.Fprintf(stdout, "valid=false export_id=%s error=%s\n", export.ExportID, err.Error())
		return 1
	}
	fmt.Fprintf(stdout, "valid=true export_id=%s key_id=%s\n", export.ExportID, export.KeyID)
	return 0
}

func httpGet(client *http.Client, url string, token string) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func httpPost(client *http.Client, url string, token string, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func envOrDefault(key string, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}

func usage(w io.Writer) {
	fmt.Fprint(w, `FossClear CLI

Usage:
  fossclear apply <item_id> --kind KIND [--skip none|noLicense] [--addr URL] [--json] [--token TOKEN]
  fossclear history <item_id> [--addr URL] [--json] [--token TOKEN]
  fossclear status <upload_id> [--addr URL] [--json] [--token TOKEN]
  fossclear verify <item_id> [--addr URL] [--token TOKEN]
`)
}
