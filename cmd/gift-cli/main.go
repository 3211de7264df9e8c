package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"giftchain/cmd/internal/passphrase"
)

const (
	walletPassEnv   = "GIFT_WALLET_PASS"
	operatorJWTEnv  = "GIFT_RPC_TOKEN"
	defaultEndpoint = "http://127.0.0.1:8547"
	defaultKeystore = "wallet.json"
)

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type rpcCaller func(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error)

// cli carries the global settings shared by every subcommand.
type cli struct {
	endpoint string
	keystore string
	token    string
	stdout   io.Writer
	stderr   io.Writer
	call     rpcCaller
	pass     func() (string, error)
	now      func() time.Time
}

func main() {
	c := &cli{
		endpoint: defaultEndpointFromEnv(),
		keystore: defaultKeystore,
		token:    strings.TrimSpace(os.Getenv(operatorJWTEnv)),
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		pass:     passphrase.NewSource(walletPassEnv, "wallet").Get,
		now:      time.Now,
	}
	c.call = c.httpCall
	os.Exit(c.run(os.Args[1:]))
}

func defaultEndpointFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("GIFT_RPC_URL")); v != "" {
		return v
	}
	return defaultEndpoint
}

func (c *cli) run(args []string) int {
	args, err := c.applyGlobalFlags(args)
	if err != nil {
		return printError(c.stderr, err.Error())
	}
	if len(args) == 0 {
		fmt.Fprintln(c.stderr, usage())
		return 1
	}
	rest := args[1:]
	switch args[0] {
	case "generate-key":
		return c.runGenerateKey(rest)
	case "address":
		return c.runAddress(rest)
	case "balance":
		return c.runBalance(rest)
	case "faucet":
		return c.runFaucet(rest)
	case "create":
		return c.runCreate(rest)
	case "allowlist":
		return c.runAllowList(rest)
	case "redeem":
		return c.runRedeem(rest)
	case "refund":
		return c.runCardAction("refund", rest)
	case "delete":
		return c.runCardAction("delete", rest)
	case "get":
		return c.runGet(rest)
	case "list":
		return c.runList(rest)
	case "events":
		return c.runEvents(rest)
	case "help", "-h", "--help":
		fmt.Fprintln(c.stdout, usage())
		return 0
	default:
		fmt.Fprintf(c.stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(c.stderr, usage())
		return 1
	}
}

// applyGlobalFlags strips --rpc and --keystore from anywhere in args.
func (c *cli) applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		var target *string
		name := ""
		switch {
		case arg == "--rpc" || strings.HasPrefix(arg, "--rpc="):
			target, name = &c.endpoint, "--rpc"
		case arg == "--keystore" || strings.HasPrefix(arg, "--keystore="):
			target, name = &c.keystore, "--keystore"
		default:
			out = append(out, arg)
			continue
		}
		if value, ok := strings.CutPrefix(arg, name+"="); ok {
			*target = value
			continue
		}
		if i+1 >= len(args) {
			return nil, fmt.Errorf("missing value for %s", name)
		}
		*target = args[i+1]
		i++
	}
	return out, nil
}

func (c *cli) httpCall(method string, params interface{}, requireAuth bool) (json.RawMessage, *rpcError, error) {
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		payload["params"] = []interface{}{params}
	} else {
		payload["params"] = []interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requireAuth {
		if c.token == "" {
			return nil, nil, fmt.Errorf("operator RPC call requires %s to be set", operatorJWTEnv)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("POST %s: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	var decoded struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, nil, fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	return decoded.Result, decoded.Error, nil
}

// invoke runs method and prints its result, mapping failures to an exit code.
func (c *cli) invoke(method string, params interface{}, requireAuth bool) int {
	result, rpcErr, err := c.call(method, params, requireAuth)
	if err != nil {
		return handleRPCCallError(c.stderr, err)
	}
	if rpcErr != nil {
		return handleRPCError(c.stderr, rpcErr)
	}
	writeRPCResult(c.stdout, result)
	return 0
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage())
	}
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func handleRPCError(w io.Writer, err *rpcError) int {
	if err == nil {
		return 0
	}
	if len(err.Data) > 0 {
		fmt.Fprintf(w, "RPC error %d: %s (%s)\n", err.Code, err.Message, strings.Trim(string(err.Data), `"`))
		return 1
	}
	fmt.Fprintf(w, "RPC error %d: %s\n", err.Code, err.Message)
	return 1
}

func handleRPCCallError(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintf(w, "RPC call failed: %v\n", err)
	return 1
}

func writeRPCResult(w io.Writer, result json.RawMessage) {
	if len(result) == 0 {
		fmt.Fprintln(w, "null")
		return
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		_, _ = w.Write(result)
		fmt.Fprintln(w)
		return
	}
	pretty.WriteByte('\n')
	_, _ = pretty.WriteTo(w)
}

func usage() string {
	return strings.TrimSpace(`Usage:
  gift-cli [--rpc URL] [--keystore FILE] <command> [flags]

Account commands:
  generate-key  Create a new wallet keystore
  address       Print the wallet address
  balance       Show an asset balance (--address, --asset)
  faucet        Request devnet funds (operator token in GIFT_RPC_TOKEN)

Gift card commands:
  create     Create and fund a gift card (--id, --amount, --asset, --unlock, --refund)
  allowlist  Replace the recipient allow-list (--id, --recipient, repeatable)
  redeem     Pay a recipient from a gift card (--id, --amount, --to)
  refund     Return the remaining balance after the refund time (--id)
  delete     Delete an empty gift card (--id)
  get        Show one gift card (--owner, --id)
  list       List gift cards of an owner (--owner)
  events     List recorded events (--owner, --id, --type, --after, --limit)

The wallet passphrase is read from GIFT_WALLET_PASS or prompted.`)
}
